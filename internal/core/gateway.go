package core

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"symptom-triage/internal/llm"
	"symptom-triage/pkg"
)

const (
	sufficiencyMarker = "enough_info"
	maxQuestionLen    = 110
	minCutIndex       = 80
)

// Gateway turns conversation state into prompts and model replies into
// questions or summary text.
type Gateway struct {
	gen llm.Generator
	log *zap.Logger
}

// NewGateway constructs a gateway over gen.
func NewGateway(gen llm.Generator, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{gen: gen, log: log}
}

// GenerateFollowUpQuestion asks the model for the next question.  A nil
// question with a nil error means the model has enough information.  When the
// key pool is exhausted the generic fallback question is returned instead of
// an error.
func (g *Gateway) GenerateFollowUpQuestion(ctx context.Context, req FollowUpRequest) (*pkg.Question, error) {
	text, err := g.gen.Generate(ctx, FollowUpPrompt(req), llm.FollowUpConfig)
	if errors.Is(err, llm.ErrPoolExhausted) {
		g.log.Warn("key pool exhausted, using fallback question")
		return FallbackQuestion(), nil
	}
	if err != nil {
		return nil, err
	}
	q, enough := ParseFollowUp(text)
	if enough {
		return nil, nil
	}
	return q, nil
}

// GenerateSummary requests the five-section assessment.
func (g *Gateway) GenerateSummary(ctx context.Context, complaint string, answers []pkg.Answer) (string, error) {
	return g.gen.Generate(ctx, SummaryPrompt(complaint, answers), llm.SummaryConfig)
}

// GenerateFlashSummary requests an assessment from a single message.
func (g *Gateway) GenerateFlashSummary(ctx context.Context, text string) (string, error) {
	return g.gen.Generate(ctx, FlashPrompt(text), llm.SummaryConfig)
}

var optionLine = regexp.MustCompile(`^\d+\.\s*`)

// ParseFollowUp reads a follow-up reply.  enough is true when the reply
// contains the sufficiency marker.  Otherwise a question is always returned,
// falling back to the generic one when the reply is unusable.
func ParseFollowUp(text string) (q *pkg.Question, enough bool) {
	if strings.Contains(strings.ToLower(text), sufficiencyMarker) {
		return nil, true
	}

	var question string
	var labels []string
	found := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case len(line) >= 9 && strings.EqualFold(line[:9], "question:"):
			// The first question line wins.
			if !found {
				question = strings.TrimSpace(line[9:])
				found = true
			}
		case optionLine.MatchString(line):
			if l := strings.TrimSpace(optionLine.ReplaceAllString(line, "")); l != "" {
				labels = append(labels, l)
			}
		}
	}
	question = truncateQuestion(question)

	if question == "" || len(labels) < 2 {
		fb := FallbackQuestion()
		if question != "" {
			fb.Text = question
		}
		return fb, false
	}
	return &pkg.Question{Text: question, Options: pkg.OptionsFromLabels(labels)}, false
}

// truncateQuestion shortens long questions, preferring a word boundary past
// minCutIndex.
func truncateQuestion(q string) string {
	if utf8.RuneCountInString(q) <= maxQuestionLen {
		return q
	}
	runes := []rune(q)[:maxQuestionLen]
	cut := maxQuestionLen
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == ' ' {
			if i > minCutIndex {
				cut = i
			}
			break
		}
	}
	return string(runes[:cut]) + "..."
}
