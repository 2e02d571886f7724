package core

import (
	"context"
	"fmt"
	"time"

	"symptom-triage/pkg"
)

// SummaryGenerator produces raw assessment text.  Gateway implements it.
type SummaryGenerator interface {
	GenerateSummary(ctx context.Context, complaint string, answers []pkg.Answer) (string, error)
	GenerateFlashSummary(ctx context.Context, text string) (string, error)
}

// Summarizer turns raw model output into sections and specialty tags.
type Summarizer struct {
	gen    SummaryGenerator
	parser SectionParser
	now    func() time.Time
}

// NewSummarizer constructs a summarizer.  A nil parser uses MarkerParser.
func NewSummarizer(gen SummaryGenerator, parser SectionParser) *Summarizer {
	if parser == nil {
		parser = MarkerParser{}
	}
	return &Summarizer{gen: gen, parser: parser, now: time.Now}
}

// Summarize produces the assessment for a finished interview.  A reply
// without section markers yields ErrNoSections.
func (s *Summarizer) Summarize(ctx context.Context, complaint string, answers []pkg.Answer) (*pkg.Summary, error) {
	raw, err := s.gen.GenerateSummary(ctx, complaint, answers)
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}
	return s.build(raw)
}

// Flash produces an assessment from a single emergency description.
func (s *Summarizer) Flash(ctx context.Context, text string) (*pkg.Summary, error) {
	raw, err := s.gen.GenerateFlashSummary(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("generate flash summary: %w", err)
	}
	return s.build(raw)
}

func (s *Summarizer) build(raw string) (*pkg.Summary, error) {
	sections := s.parser.Parse(raw)
	if len(sections) == 0 {
		return nil, ErrNoSections
	}
	specialtyText := "general medicine"
	if sec, ok := FindSection(sections, "specialty"); ok {
		specialtyText = sec.Content
	}
	return &pkg.Summary{
		Raw:         raw,
		Sections:    sections,
		Specialties: ExtractSpecialties(specialtyText),
		CreatedAt:   s.now(),
	}, nil
}
