package transform

import "strings"

// usStates maps US state full names to their abbreviations.
var usStates = map[string]string{
	"alabama":        "AL",
	"alaska":         "AK",
	"arizona":        "AZ",
	"arkansas":       "AR",
	"california":     "CA",
	"colorado":       "CO",
	"connecticut":    "CT",
	"delaware":       "DE",
	"florida":        "FL",
	"georgia":        "GA",
	"hawaii":         "HI",
	"idaho":          "ID",
	"illinois":       "IL",
	"indiana":        "IN",
	"iowa":           "IA",
	"kansas":         "KS",
	"kentucky":       "KY",
	"louisiana":      "LA",
	"maine":          "ME",
	"maryland":       "MD",
	"massachusetts":  "MA",
	"michigan":       "MI",
	"minnesota":      "MN",
	"mississippi":    "MS",
	"missouri":       "MO",
	"montana":        "MT",
	"nebraska":       "NE",
	"nevada":         "NV",
	"new hampshire":  "NH",
	"new jersey":     "NJ",
	"new mexico":     "NM",
	"new york":       "NY",
	"north carolina": "NC",
	"north dakota":   "ND",
	"ohio":           "OH",
	"oklahoma":       "OK",
	"oregon":         "OR",
	"pennsylvania":   "PA",
	"rhode island":   "RI",
	"south carolina": "SC",
	"south dakota":   "SD",
	"tennessee":      "TN",
	"texas":          "TX",
	"utah":           "UT",
	"vermont":        "VT",
	"virginia":       "VA",
	"washington":     "WA",
	"west virginia":  "WV",
	"wisconsin":      "WI",
	"wyoming":        "WY",
}

// normalizeUsState converts US state names to their 2-letter abbreviations.
// Already-abbreviated or unrecognized input is returned as-is.
func normalizeUsState(s string) string {
	s = strings.TrimSpace(s)
	if code, ok := usStates[strings.ToLower(s)]; ok {
		return code
	}
	upper := strings.ToUpper(s)
	for _, code := range usStates {
		if upper == code {
			return code
		}
	}
	return s
}

// priorityCodes maps free-text priority labels to the A-D scale.
var priorityCodes = map[string]string{
	"highest":  "A",
	"high":     "A",
	"critical": "A",
	"top":      "A",
	"medium":   "B",
	"med":      "B",
	"normal":   "B",
	"low":      "C",
	"lowest":   "D",
	"minimal":  "D",
	"none":     "D",
}

// normalizePriority collapses values like "A - Highest" or "High" to a bare
// letter code. Unrecognized input is returned as-is for enum validation to
// reject.
func normalizePriority(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	// "A-highest", "B (medium)" and similar start with the code itself.
	first := strings.ToUpper(s[:1])
	if len(s) == 1 || !isLetter(rune(s[1])) {
		if first >= "A" && first <= "D" {
			return first
		}
	}
	if code, ok := priorityCodes[strings.ToLower(s)]; ok {
		return code
	}
	return s
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// orgTypes maps common source-system terminology to canonical types.
var orgTypes = map[string]string{
	"client":      "customer",
	"account":     "customer",
	"buyer":       "customer",
	"lead":        "prospect",
	"opportunity": "prospect",
	"supplier":    "vendor",
	"distributor": "vendor",
	"reseller":    "partner",
	"affiliate":   "partner",
}

// normalizeOrgType lowercases the value and resolves known synonyms.
func normalizeOrgType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if canonical, ok := orgTypes[s]; ok {
		return canonical
	}
	return s
}

// normalizePhone strips punctuation from phone numbers, keeping digits and a
// leading plus. Values without enough digits are returned untouched.
func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(strings.TrimPrefix(out, "+")) < 7 {
		return s
	}
	return out
}

// normalizers is the registry consulted by Field.Normalizer names in the
// catalogue. Unknown names are a no-op.
var normalizers = map[string]func(string) string{
	"us_state":          normalizeUsState,
	"priority_code":     normalizePriority,
	"organization_type": normalizeOrgType,
	"phone":             normalizePhone,
}
