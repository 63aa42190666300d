package ingest

import (
	"mimic-ai/backend/internal/adapter"
	"mimic-ai/backend/internal/topics"
	"mimic-ai/backend/internal/transcript"
	"mimic-ai/backend/pkg/config"
)

// OptionsFromConfig wires the parser timezone, topic extractors and matching
// thresholds from cfg. The LLM extractor is primary only when an API key is set.
func OptionsFromConfig(cfg *config.Config) []Option {
	var primary topics.Extractor
	if cfg.LLMEnabled() {
		primary = topics.NewLLMExtractor(adapter.NewLLMAdapter(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.ModelID), cfg.TopicMaxTopics)
	}

	return []Option{
		WithParser(transcript.NewParser(cfg.Location())),
		WithExtractors(primary, topics.NewFrequencyExtractor(cfg.TopicMaxTopics)),
		WithMinTopicMessages(cfg.TopicMinMessages),
		WithMatchKeywords(cfg.TopicMatchKeywords),
	}
}
