package appointment

import (
	"sort"
	"strings"
)

// specializationRules maps symptom keywords to the specialization label a
// doctor must carry to treat them. Matching is substring containment on the
// lower-cased issue text.
var specializationRules = map[string]string{
	// Cardiology
	"heart":      "Cardiologist",
	"cardiac":    "Cardiologist",
	"chest pain": "Cardiologist",
	"angina":     "Cardiologist",

	// Dermatology
	"skin":      "Dermatologist",
	"rash":      "Dermatologist",
	"acne":      "Dermatologist",
	"eczema":    "Dermatologist",
	"psoriasis": "Dermatologist",

	// Ophthalmology
	"eye":    "Ophthalmologist",
	"eyes":   "Ophthalmologist",
	"vision": "Ophthalmologist",
	"blurry": "Ophthalmologist",
	"optic":  "Ophthalmologist",

	// Orthopedics
	"bone":     "Orthopedic",
	"joint":    "Orthopedic",
	"fracture": "Orthopedic",
	"sprain":   "Orthopedic",

	// Dentistry
	"tooth":  "Dentist",
	"teeth":  "Dentist",
	"gum":    "Dentist",
	"molars": "Dentist",

	// Pulmonology
	"lung":   "Pulmonologist",
	"lungs":  "Pulmonologist",
	"cough":  "Pulmonologist",
	"asthma": "Pulmonologist",
	"breath": "Pulmonologist",

	// Neurology
	"headache": "Neurologist",
	"migraine": "Neurologist",
	"seizure":  "Neurologist",

	// Gastroenterology
	"stomach": "Gastroenterologist",
	"abdomen": "Gastroenterologist",
	"liver":   "Hepatologist",

	// Urology / Nephrology
	"kidney":  "Nephrologist",
	"urine":   "Urologist",
	"bladder": "Urologist",

	// ENT
	"ear":    "ENT",
	"nose":   "ENT",
	"throat": "ENT",
	"sinus":  "ENT",

	// Pediatrics / Gynecology
	"child":     "Pediatrician",
	"kid":       "Pediatrician",
	"pregnancy": "Gynecologist",
	"women":     "Gynecologist",

	// Psychiatry
	"depression": "Psychiatrist",
	"anxiety":    "Psychiatrist",
	"stress":     "Psychiatrist",

	// Endocrinology
	"diabetes": "Endocrinologist",
	"hormone":  "Endocrinologist",

	// Infectious disease
	"infection": "Infectious Disease Specialist",
	"fever":     "General Physician",
}

// orderedKeywords holds the rule keywords sorted longest first, ties broken
// lexicographically. The ordering is a behavioral contract: an issue text
// matching several keywords always resolves to the most specific (longest)
// one, so "chest pain" wins over any shorter overlapping keyword regardless
// of map iteration order.
var orderedKeywords = func() []string {
	kws := make([]string, 0, len(specializationRules))
	for kw := range specializationRules {
		kws = append(kws, kw)
	}
	sort.Slice(kws, func(i, j int) bool {
		if len(kws[i]) != len(kws[j]) {
			return len(kws[i]) > len(kws[j])
		}
		return kws[i] < kws[j]
	})
	return kws
}()

// ResolveSpecialization maps free-text issue wording to a specialization
// label. The empty string and unmatched text both yield ok == false.
func ResolveSpecialization(issue string) (string, bool) {
	lowered := strings.ToLower(strings.TrimSpace(issue))
	if lowered == "" {
		return "", false
	}
	for _, kw := range orderedKeywords {
		if strings.Contains(lowered, kw) {
			return specializationRules[kw], true
		}
	}
	return "", false
}

// Specializations returns the distinct specialization labels the resolver
// can produce, sorted. Used by the seeder so every resolvable label has
// doctors behind it.
func Specializations() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, spec := range specializationRules {
		if _, ok := seen[spec]; ok {
			continue
		}
		seen[spec] = struct{}{}
		out = append(out, spec)
	}
	sort.Strings(out)
	return out
}
