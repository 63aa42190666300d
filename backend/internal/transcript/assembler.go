package transcript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "mimic-ai/backend/pkg/errors"
	"mimic-ai/backend/pkg/logger"
)

// ParseReport counts what happened to each input line.
type ParseReport struct {
	Lines             int `json:"lines"`
	BlankLines        int `json:"blank_lines"`
	Headers           int `json:"headers"`
	Continuations     int `json:"continuations"`
	OrphanLines       int `json:"orphan_lines"`
	SystemLines       int `json:"system_lines"`
	EmptyLines        int `json:"empty_lines"`
	TimestampFailures int `json:"timestamp_failures"`
}

// Parser assembles transcript text into messages.
type Parser struct {
	classifier *Classifier
	logger     *zap.Logger
}

// NewParser creates a parser interpreting timestamps in loc (UTC when nil).
func NewParser(loc *time.Location) *Parser {
	return &Parser{
		classifier: NewClassifier(loc),
		logger:     logger.Named("transcript"),
	}
}

// Parse assembles raw transcript text.
func (p *Parser) Parse(raw string) ([]Message, ParseReport) {
	messages, report, err := p.ParseReader(strings.NewReader(raw))
	if err != nil {
		p.logger.Error("Transcript read failed", zap.Int("lines", report.Lines), zap.Error(err))
	}
	return messages, report
}

// ParseReader assembles messages from r in file order. Messages are not sorted
// by timestamp. Lines have no length limit. The error is non-nil only when
// reading r fails; messages read up to that point are still returned.
func (p *Parser) ParseReader(r io.Reader) ([]Message, ParseReport, error) {
	var (
		report   ParseReport
		messages []Message
		open     *Message
	)

	closeOpen := func() {
		if open != nil {
			messages = append(messages, *open)
			open = nil
		}
	}

	handle := func(line string) {
		report.Lines++
		if strings.TrimSpace(line) == "" {
			report.BlankLines++
			return
		}

		c := p.classifier.Classify(line)
		switch c.Kind {
		case KindSystem:
			report.SystemLines++
			p.logger.Debug("Skipping system message", zap.Int("line", report.Lines))

		case KindEmpty:
			report.EmptyLines++

		case KindHeader:
			report.Headers++
			closeOpen()
			h := c.Header
			open = &Message{
				Timestamp: h.Timestamp,
				Sender:    h.Sender,
				Body:      h.Remainder,
				IsMedia:   h.IsMedia,
				MediaKind: h.MediaKind,
			}
			if h.IsMedia {
				p.logger.Debug("Media reference detected",
					zap.String("media_kind", string(h.MediaKind)),
					zap.Int("line", report.Lines),
				)
			}

		default:
			var tsErr *apperrors.TimestampError
			if errors.As(c.Reason, &tsErr) {
				report.TimestampFailures++
				p.logger.Warn("Failed to parse timestamp",
					zap.String("grammar", tsErr.Grammar),
					zap.String("date", tsErr.DateToken),
					zap.String("time", tsErr.TimeToken),
				)
			}
			if open == nil {
				report.OrphanLines++
				return
			}
			report.Continuations++
			open.Body += "\n" + line
		}
	}

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			handle(strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			closeOpen()
			return messages, report, fmt.Errorf("failed to read transcript: %w", err)
		}
	}
	closeOpen()

	p.logger.Info("Parsed messages from chat export",
		zap.Int("messages", len(messages)),
		zap.Int("lines", report.Lines),
		zap.Int("system_lines", report.SystemLines),
	)
	return messages, report, nil
}
