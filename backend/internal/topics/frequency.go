package topics

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

const (
	minTokenRunes   = 3
	minDocFrequency = 2
	maxDocShare     = 0.7
	keywordsPer     = 5
	labelKeywords   = 3
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_']+`)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true, "you": true,
	"all": true, "any": true, "can": true, "had": true, "her": true, "was": true, "one": true,
	"our": true, "out": true, "has": true, "have": true, "him": true, "his": true, "how": true,
	"its": true, "let": true, "may": true, "she": true, "too": true, "use": true, "that": true,
	"this": true, "with": true, "from": true, "they": true, "will": true, "would": true,
	"there": true, "their": true, "what": true, "about": true, "which": true, "when": true,
	"were": true, "been": true, "your": true, "just": true, "like": true, "also": true,
	"then": true, "them": true, "than": true, "some": true, "into": true, "could": true,
	"should": true, "because": true, "yes": true, "yeah": true, "okay": true, "i'm": true,
	"it's": true, "don't": true, "that's": true, "i'll": true, "you're": true, "did": true,
	"get": true, "got": true, "now": true, "see": true, "who": true, "why": true, "where": true,
	"here": true, "very": true, "more": true, "much": true, "only": true, "really": true,
	"well": true, "still": true, "even": true, "being": true, "does": true, "doing": true,
	"going": true, "know": true, "think": true, "want": true, "need": true, "make": true,
}

// FrequencyExtractor groups texts by shared words. It needs no external
// service and serves as the fallback extractor.
type FrequencyExtractor struct {
	maxTopics int
}

// NewFrequencyExtractor creates an extractor returning at most maxTopics topics.
func NewFrequencyExtractor(maxTopics int) *FrequencyExtractor {
	if maxTopics < 1 {
		maxTopics = 1
	}
	return &FrequencyExtractor{maxTopics: maxTopics}
}

// Extract seeds topics with the words found in the most texts and labels each
// by its leading co-occurring keywords. Score is the share of texts
// containing the seed word.
func (f *FrequencyExtractor) Extract(ctx context.Context, texts []string) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs := make([]map[string]bool, 0, len(texts))
	docFreq := make(map[string]int)
	for _, text := range texts {
		words := tokenize(text)
		if len(words) == 0 {
			continue
		}
		docs = append(docs, words)
		for w := range words {
			docFreq[w]++
		}
	}

	result := &Extraction{Topics: []Topic{}, Method: MethodFrequency}
	if len(docs) == 0 {
		return result, nil
	}

	maxDocs := len(docs)
	if len(docs) >= 5 {
		maxDocs = int(float64(len(docs)) * maxDocShare)
	}

	candidates := make([]string, 0, len(docFreq))
	for w, n := range docFreq {
		if n >= minDocFrequency && n <= maxDocs {
			candidates = append(candidates, w)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if docFreq[a] != docFreq[b] {
			return docFreq[a] > docFreq[b]
		}
		return a < b
	})

	eligible := make(map[string]bool, len(candidates))
	for _, w := range candidates {
		eligible[w] = true
	}

	used := make(map[string]bool)
	for _, seed := range candidates {
		if len(result.Topics) == f.maxTopics {
			break
		}
		if used[seed] {
			continue
		}

		keywords := append([]string{seed}, coOccurring(seed, docs, eligible, used)...)
		for _, k := range keywords {
			used[k] = true
		}

		n := labelKeywords
		if len(keywords) < n {
			n = len(keywords)
		}
		result.Topics = append(result.Topics, Topic{
			Label:    strings.Join(keywords[:n], "_"),
			Keywords: keywords,
			Score:    float64(docFreq[seed]) / float64(len(docs)),
		})
	}
	return result, nil
}

// coOccurring returns the eligible unused words most often found alongside seed.
func coOccurring(seed string, docs []map[string]bool, eligible, used map[string]bool) []string {
	counts := make(map[string]int)
	for _, doc := range docs {
		if !doc[seed] {
			continue
		}
		for w := range doc {
			if w != seed && eligible[w] && !used[w] {
				counts[w]++
			}
		}
	}

	words := make([]string, 0, len(counts))
	for w, n := range counts {
		if n >= minDocFrequency {
			words = append(words, w)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > keywordsPer-1 {
		words = words[:keywordsPer-1]
	}
	return words
}

func tokenize(text string) map[string]bool {
	words := make(map[string]bool)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		tok = strings.Trim(tok, "'_")
		if len([]rune(tok)) < minTokenRunes || stopwords[tok] || isNumber(tok) {
			continue
		}
		words[tok] = true
	}
	return words
}

func isNumber(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
