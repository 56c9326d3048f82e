package mapper

import (
	"regexp"
	"strings"
	"unicode"
)

// samplePatterns are the shape rules that fields can reference by name via
// the catalogue's pattern attribute. Rules match against column DATA, not
// header names, so a cryptic header can still score well when its values are
// unambiguous.
var samplePatterns = map[string]*regexp.Regexp{
	"priority_code": regexp.MustCompile(`(?i)^[a-d]$`),
	"email":         regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`),
	"url":           regexp.MustCompile(`(?i)^(https?://)?[a-z0-9][a-z0-9.-]*\.[a-z]{2,}(/\S*)?$`),
	"phone":         regexp.MustCompile(`^\+?[0-9 ().\-]{7,20}$`),
	"us_state":      regexp.MustCompile(`(?i)^([A-Z]{2}|[a-z ]{4,20})$`),
	"postal_code":   regexp.MustCompile(`^[0-9]{5}(-[0-9]{4})?$|^[A-Za-z][0-9][A-Za-z] ?[0-9][A-Za-z][0-9]$`),
}

// sampleMatchRatio returns the fraction of samples matching the named shape
// rule. Unknown rule names match nothing.
func sampleMatchRatio(pattern string, samples []string) float64 {
	if len(samples) == 0 {
		return 0
	}

	matchFn := func(s string) bool { return false }
	if pattern == "company_name" {
		matchFn = looksLikeCompanyName
	} else if re, ok := samplePatterns[pattern]; ok {
		matchFn = re.MatchString
	}

	matched := 0
	for _, s := range samples {
		if matchFn(strings.TrimSpace(s)) {
			matched++
		}
	}
	return float64(matched) / float64(len(samples))
}

// corporateSuffixes are common legal-entity markers in company names.
var corporateSuffixes = []string{
	"inc", "inc.", "llc", "l.l.c.", "ltd", "ltd.", "corp", "corp.",
	"corporation", "co", "co.", "company", "gmbh", "plc", "lp", "llp", "group",
}

// looksLikeCompanyName accepts multi-character text that is mostly letters
// and is not an obvious code, number, or email.
func looksLikeCompanyName(s string) bool {
	if len(s) < 2 || len(s) > 255 {
		return false
	}
	if strings.ContainsAny(s, "@") {
		return false
	}

	letters, digits := 0, 0
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		}
	}
	if letters == 0 || digits > letters {
		return false
	}

	// A trailing legal-entity marker is a strong signal on its own.
	words := strings.Fields(strings.ToLower(s))
	if len(words) > 1 {
		last := words[len(words)-1]
		for _, suffix := range corporateSuffixes {
			if last == suffix {
				return true
			}
		}
	}

	// Otherwise require at least a few letters so single codes don't pass.
	return letters >= 3
}
