package core

import (
	"strings"
	"unicode/utf8"
)

// NormalizeQuestion lowercases q and drops everything that is not an ASCII
// letter or digit.  Two questions with the same normalized form are treated as
// the same question.
func NormalizeQuestion(q string) string {
	var b strings.Builder
	b.Grow(len(q))
	for _, r := range q {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}

// Similar reports whether two questions ask the same thing.  It matches on
// identical normalized text, on containment when both normalized forms are
// longer than ten characters, and otherwise on word overlap above 80%.
func Similar(a, b string) bool {
	na, nb := NormalizeQuestion(a), NormalizeQuestion(b)
	if na == nb {
		return true
	}
	if len(na) > 10 && len(nb) > 10 && (strings.Contains(na, nb) || strings.Contains(nb, na)) {
		return true
	}
	return wordOverlap(a, b) > 0.8
}

// wordOverlap is |A∩B| / max(|A|,|B|) over the sets of lowercase words longer
// than two characters.  Two empty sets overlap by zero.
func wordOverlap(a, b string) float64 {
	wa, wb := significantWords(a), significantWords(b)
	longest := len(wa)
	if len(wb) > longest {
		longest = len(wb)
	}
	if longest == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(longest)
}

func significantWords(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if utf8.RuneCountInString(w) > 2 {
			out[w] = struct{}{}
		}
	}
	return out
}

// AskedBefore reports whether candidate is similar to any question in asked.
func AskedBefore(candidate string, asked []string) bool {
	for _, q := range asked {
		if Similar(candidate, q) {
			return true
		}
	}
	return false
}
