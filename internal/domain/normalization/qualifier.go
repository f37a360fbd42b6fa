package normalization

import (
	"regexp"
	"sort"
	"strings"
)

// CommonQualifiers lists the descriptive terms found attached to analyte
// names in laboratory reports.  Multi-word entries must appear so that
// stripping removes the whole phrase, not a fragment.
var CommonQualifiers = []string{
	"total",
	"dissolved",
	"recoverable",
	"extractable",
	"hexavalent",
	"trivalent",
	"total recoverable",
	"acid extractable",
	"weak acid dissociable",
	"reactive",
	"available",
	"soluble",
	"inorganic",
	"organic",
	"elemental",
	"ionic",
	"free",
	"combined",
	"as n",
	"as p",
	"as cn",
}

// PreserveAlways lists qualifiers that denote a chemically distinct species
// and must never be stripped: "Chromium, hexavalent" is a different analyte
// from "Chromium", and "Nitrate as N" is reported on a different mass basis
// than "Nitrate".
var PreserveAlways = []string{
	"hexavalent",
	"trivalent",
	"as n",
	"as p",
	"as cn",
	"elemental",
	"ionic",
}

// QualifierHandler strips non-identifying qualifiers from normalized names.
// Safe for concurrent use after construction.
type QualifierHandler struct {
	// ordered longest-first so multi-word qualifiers are removed whole
	ordered  []string
	patterns map[string]*regexp.Regexp
	preserve map[string]bool
}

// NewQualifierHandler compiles the qualifier patterns.
func NewQualifierHandler() *QualifierHandler {
	h := &QualifierHandler{
		ordered:  make([]string, len(CommonQualifiers)),
		patterns: make(map[string]*regexp.Regexp, len(CommonQualifiers)),
		preserve: make(map[string]bool, len(PreserveAlways)),
	}
	copy(h.ordered, CommonQualifiers)
	sort.Slice(h.ordered, func(i, j int) bool { return len(h.ordered[i]) > len(h.ordered[j]) })
	for _, q := range CommonQualifiers {
		h.patterns[q] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(q) + `\b`)
	}
	for _, q := range PreserveAlways {
		h.preserve[strings.ToLower(q)] = true
	}
	return h
}

// StripQualifiers removes every strippable qualifier from text and returns
// the cleaned text together with the qualifiers removed, longest first.
// Qualifiers in PreserveAlways are left in place.
func (h *QualifierHandler) StripQualifiers(text string) (string, []string) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	var removed []string
	cleaned := text
	for _, q := range h.ordered {
		if h.preserve[strings.ToLower(q)] {
			continue
		}
		pat := h.patterns[q]
		if pat.MatchString(cleaned) {
			removed = append(removed, q)
			cleaned = pat.ReplaceAllString(cleaned, "")
		}
	}
	cleaned = cleanupAfterRemoval(cleaned)
	return cleaned, removed
}

// HasQualifier reports whether text contains the given qualifier as a whole
// word.
func (h *QualifierHandler) HasQualifier(text, qualifier string) bool {
	pat, ok := h.patterns[qualifier]
	if !ok {
		pat = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(qualifier) + `\b`)
	}
	return pat.MatchString(text)
}

// ExtractQualifiers returns every qualifier present in text without removing
// them.
func (h *QualifierHandler) ExtractQualifiers(text string) []string {
	var found []string
	for _, q := range CommonQualifiers {
		if h.patterns[q].MatchString(text) {
			found = append(found, q)
		}
	}
	return found
}

// ShouldPreserve reports whether the qualifier must be kept for the analyte.
// Qualifiers in PreserveAlways always survive; for the rest, the qualifier is
// preserved when the corpus differentiates the qualified and unqualified
// forms (both "iron" and "iron dissolved" exist as canonical names).
func (h *QualifierHandler) ShouldPreserve(analyteName, qualifier string, corpusNames map[string]bool) bool {
	if h.preserve[strings.ToLower(qualifier)] {
		return true
	}
	if corpusNames == nil {
		// Without corpus context, err on the side of preservation.
		return true
	}
	base := strings.ToLower(analyteName)
	q := strings.ToLower(qualifier)
	hasBare, hasQualified := false, false
	for name := range corpusNames {
		lower := strings.ToLower(name)
		if lower == base {
			hasBare = true
		}
		if strings.Contains(lower, base) && strings.Contains(lower, q) {
			hasQualified = true
		}
	}
	return hasBare && hasQualified
}

var (
	emptyParensRe  = regexp.MustCompile(`\(\s*\)`)
	edgeCommaRe    = regexp.MustCompile(`(^\s*,\s*)|(\s*,\s*$)`)
	multiSpaceQLRe = regexp.MustCompile(`\s+`)
)

func cleanupAfterRemoval(text string) string {
	text = emptyParensRe.ReplaceAllString(text, "")
	text = edgeCommaRe.ReplaceAllString(text, "")
	text = multiSpaceQLRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
