package core

import "strings"

type specialtyRule struct {
	tag      string
	keywords []string
}

// specialtyRules is checked in order and every matching tag is kept, so the
// order here is the order of the result.
var specialtyRules = []specialtyRule{
	{"cardiology", []string{"cardiology", "cardiologist", "heart", "chest pain", "palpitations", "hypertension", "blood pressure"}},
	{"neurology", []string{"neurology", "neurologist", "headache", "migraine", "seizure", "numbness", "tingling", "stroke", "brain"}},
	{"orthopedics", []string{"orthopedics", "orthopedic", "bone", "joint", "fracture", "sprain", "back pain", "knee pain", "shoulder pain"}},
	{"gastroenterology", []string{"gastroenterology", "gastroenterologist", "stomach", "abdomen", "nausea", "vomiting", "diarrhea", "constipation"}},
	{"dermatology", []string{"dermatology", "dermatologist", "skin", "rash", "acne", "mole", "itching", "dermatitis"}},
	{"ophthalmology", []string{"ophthalmology", "ophthalmologist", "eye", "vision", "blurred", "red eye", "eye pain"}},
	{"ent", []string{"ent", "otolaryngology", "ear", "nose", "throat", "hearing", "sinus", "tonsils"}},
	{"pulmonology", []string{"pulmonology", "pulmonologist", "lung", "breathing", "cough", "asthma", "pneumonia"}},
	{"endocrinology", []string{"endocrinology", "endocrinologist", "diabetes", "thyroid", "hormone", "metabolism"}},
	{"urology", []string{"urology", "urologist", "urinary", "bladder", "kidney", "prostate"}},
	{"gynecology", []string{"gynecology", "gynecologist", "women", "menstrual", "pregnancy", "ovarian"}},
	{"pediatrics", []string{"pediatrics", "pediatrician", "child", "baby", "infant", "adolescent"}},
	{"emergency", []string{"emergency", "urgent", "acute", "trauma", "injury"}},
	{"internal", []string{"internal medicine", "general medicine", "primary care", "family medicine"}},
}

// symptomRules map common complaints to a single specialty when no specialty
// keyword matched.  First match wins.
var symptomRules = []struct {
	symptom string
	tag     string
}{
	{"chest pain", "cardiology"},
	{"shortness of breath", "pulmonology"},
	{"headache", "neurology"},
	{"abdominal pain", "gastroenterology"},
	{"skin rash", "dermatology"},
	{"eye problem", "ophthalmology"},
	{"ear pain", "ent"},
	{"joint pain", "orthopedics"},
	{"fever", "internal"},
	{"fatigue", "internal"},
	{"weight loss", "endocrinology"},
	{"urinary problem", "urology"},
}

// ExtractSpecialties maps free text to specialty tags.  Matching is plain
// substring containment on the lowercased text, so short keywords such as
// "ent" or "ear" also hit inside longer words.  The result is never empty:
// "internal" is returned when nothing matches.
func ExtractSpecialties(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, r := range specialtyRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, r.tag)
				break
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, r := range symptomRules {
		if strings.Contains(lower, r.symptom) {
			return []string{r.tag}
		}
	}
	return []string{"internal"}
}

var specialtyNames = map[string]string{
	"cardiology":       "Cardiology",
	"neurology":        "Neurology",
	"orthopedics":      "Orthopedics",
	"gastroenterology": "Gastroenterology",
	"dermatology":      "Dermatology",
	"ophthalmology":    "Ophthalmology",
	"ent":              "ENT",
	"pulmonology":      "Pulmonology",
	"endocrinology":    "Endocrinology",
	"urology":          "Urology",
	"gynecology":       "Gynecology",
	"pediatrics":       "Pediatrics",
	"emergency":        "Emergency",
	"internal":         "General Medicine",
}

// SpecialtyName returns the display name stored in the hospitals table for a
// tag.  Unknown tags are returned unchanged.
func SpecialtyName(tag string) string {
	if n, ok := specialtyNames[tag]; ok {
		return n
	}
	return tag
}
