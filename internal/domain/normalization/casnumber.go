package normalization

import (
	"regexp"
	"strings"
)

// casRe matches the CAS registry number shape: 2-7 digits, 2 digits, check
// digit, hyphen-separated.  Shape alone is not sufficient; ValidateCAS applies
// the check-digit algorithm.
var casRe = regexp.MustCompile(`\b(\d{2,7}-\d{2}-\d)\b`)

// casExactRe anchors the same shape for whole-string checks.
var casExactRe = regexp.MustCompile(`^\d{2,7}-\d{2}-\d$`)

// ExtractCAS returns the first valid CAS registry number found in text, or
// the empty string when none is present.
func ExtractCAS(text string) string {
	for _, cas := range casRe.FindAllString(text, -1) {
		if ValidateCAS(cas) {
			return cas
		}
	}
	return ""
}

// ExtractAllCAS returns every valid CAS registry number found in text, in
// order of appearance.
func ExtractAllCAS(text string) []string {
	var out []string
	for _, cas := range casRe.FindAllString(text, -1) {
		if ValidateCAS(cas) {
			out = append(out, cas)
		}
	}
	return out
}

// ValidateCAS reports whether cas is a well-formed CAS registry number with a
// correct check digit.  The check digit equals the weighted digit sum modulo
// 10, weighting digits right to left starting at 1 (check digit excluded).
func ValidateCAS(cas string) bool {
	if !casExactRe.MatchString(cas) {
		return false
	}
	digits := strings.ReplaceAll(cas, "-", "")
	if len(digits) < 5 {
		return false
	}
	check := int(digits[len(digits)-1] - '0')
	body := digits[:len(digits)-1]
	sum := 0
	for i := 0; i < len(body); i++ {
		// Weight counts from the right end of the body.
		weight := i + 1
		d := int(body[len(body)-1-i] - '0')
		sum += d * weight
	}
	return sum%10 == check
}

// FormatCAS accepts a CAS number with or without hyphens and returns the
// canonical hyphenated form, or the empty string when the input cannot form a
// valid CAS number.
func FormatCAS(cas string) string {
	digits := strings.ReplaceAll(cas, "-", "")
	if len(digits) < 5 || len(digits) > 10 {
		return ""
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return ""
		}
	}
	formatted := digits[:len(digits)-3] + "-" + digits[len(digits)-3:len(digits)-1] + "-" + digits[len(digits)-1:]
	if !ValidateCAS(formatted) {
		return ""
	}
	return formatted
}

// IsCASFormat reports whether text has the CAS number shape, without applying
// check-digit validation.  Useful as a cheap pre-filter.
func IsCASFormat(text string) bool {
	return casExactRe.MatchString(strings.TrimSpace(text))
}
