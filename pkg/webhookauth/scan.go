package webhookauth

import "regexp"

// Injection patterns checked against every string field of the payload.
// The gateway never sends markup, so any match means the payload was
// tampered with or crafted.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script\b`),
	regexp.MustCompile(`(?i)<\s*/\s*script\s*>`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)\bnew\s+Function\s*\(`),
	regexp.MustCompile(`(?i)<\s*iframe\b`),
	regexp.MustCompile(`(?i)document\s*\.\s*(cookie|write)`),
}

// scanForInjection walks the decoded payload and reports the first string
// value matching an injection pattern. Returns the offending value and true
// on a match.
func scanForInjection(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		for _, pattern := range injectionPatterns {
			if pattern.MatchString(v) {
				return v, true
			}
		}
	case map[string]any:
		for _, nested := range v {
			if match, found := scanForInjection(nested); found {
				return match, true
			}
		}
	case []any:
		for _, nested := range v {
			if match, found := scanForInjection(nested); found {
				return match, true
			}
		}
	}
	return "", false
}
