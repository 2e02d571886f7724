package core

import (
	"regexp"
	"strings"

	"symptom-triage/pkg"
)

// SectionParser splits a model response into labelled sections.
type SectionParser interface {
	Parse(raw string) []pkg.Section
}

// MarkerParser recognises sections introduced by a bold label such as
// "**URGENCY LEVEL:**".  Each section's content runs until the next marker or
// the end of the text.
type MarkerParser struct{}

var sectionMarker = regexp.MustCompile(`\*\*([\w \-]+):\*\*`)

// Parse returns the sections in order of appearance.  Text before the first
// marker is dropped.  An input without markers yields no sections.
func (MarkerParser) Parse(raw string) []pkg.Section {
	locs := sectionMarker.FindAllStringSubmatchIndex(raw, -1)
	out := make([]pkg.Section, 0, len(locs))
	for i, loc := range locs {
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out = append(out, pkg.Section{
			Name:    strings.TrimSpace(raw[loc[2]:loc[3]]),
			Content: strings.TrimSpace(raw[loc[1]:end]),
		})
	}
	return out
}

// FindSection returns the first section whose name contains substr,
// case-insensitively.
func FindSection(sections []pkg.Section, substr string) (pkg.Section, bool) {
	substr = strings.ToLower(substr)
	for _, s := range sections {
		if strings.Contains(strings.ToLower(s.Name), substr) {
			return s, true
		}
	}
	return pkg.Section{}, false
}
