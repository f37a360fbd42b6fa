// Package normalization converts raw laboratory chemical names into the
// canonical keys used by every matching stage.  Normalization is versioned:
// NormalizationVersion must be incremented whenever the pipeline changes, and
// stored synonym keys re-derived.
package normalization

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizationVersion identifies the rule set that produced a Key.  Stored
// alongside every synonym so that a rule change can trigger re-normalization
// of existing rows instead of silently splitting the corpus.
const NormalizationVersion = 1

// Key is the output of the normalization pipeline for one raw name.
type Key struct {
	// Primary is the fully normalized form used for exact matching.
	Primary string

	// Stripped is the Primary form with non-identifying qualifiers removed
	// ("total", "dissolved", ...).  Species-distinct qualifiers such as
	// "hexavalent" or "as n" are never stripped.  Empty when stripping
	// removed nothing.
	Stripped string

	// Qualifiers lists the qualifiers that were removed to produce Stripped.
	Qualifiers []string

	// Variants holds bounded alternative forms (locant reordering, aromatic
	// position descriptors, hyphen/space permutations) for recall-oriented
	// lookups.  All entries are themselves normalized.
	Variants []string

	// CAS is the first valid CAS registry number found in the raw text,
	// empty when none is present.
	CAS string

	// SchemaVersion records the NormalizationVersion that produced this key.
	SchemaVersion int
}

// AllForms returns every matchable form of the key in lookup order:
// Primary, then Stripped when qualifiers were removed, then the generated
// variants.  Deduplicated, never empty when Primary is set.
func (k Key) AllForms() []string {
	forms := make([]string, 0, 2+len(k.Variants))
	seen := make(map[string]struct{}, 2+len(k.Variants))
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		forms = append(forms, s)
	}
	add(k.Primary)
	add(k.Stripped)
	for _, v := range k.Variants {
		add(v)
	}
	return forms
}

// Normalizer applies the deterministic normalization pipeline.  The zero
// value is not usable; construct with NewNormalizer.  Safe for concurrent use.
type Normalizer struct {
	qualifiers *QualifierHandler
	caser      cases.Caser
}

// NewNormalizer constructs a Normalizer with the standard rule tables.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		qualifiers: NewQualifierHandler(),
		caser:      cases.Fold(),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Rule tables
// ─────────────────────────────────────────────────────────────────────────────

// abbreviationRules expand structural and positional prefixes.  The
// single-letter hyphenated forms must run before punctuation stripping or the
// hyphen that anchors them is already gone.
var abbreviationRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\btert-`), "tertiary "},
	{regexp.MustCompile(`(?i)\bt-`), "tertiary "},
	{regexp.MustCompile(`(?i)\bsec-`), "secondary "},
	{regexp.MustCompile(`(?i)\bs-`), "secondary "},
	{regexp.MustCompile(`(?i)\biso-`), "iso "},
	{regexp.MustCompile(`(?i)\bi-`), "iso "},
	{regexp.MustCompile(`(?i)\bn-`), "normal "},
	{regexp.MustCompile(`(?i)\bo-`), "ortho "},
	{regexp.MustCompile(`(?i)\bm-`), "meta "},
	{regexp.MustCompile(`(?i)\bp-`), "para "},
	{regexp.MustCompile(`(?i)\btert\b`), "tertiary"},
	{regexp.MustCompile(`(?i)\bsec\b`), "secondary"},
}

// greekRules map spelled-out Greek letters to their Unicode symbols so that
// "alpha-BHC" and "α-BHC" normalize identically.
var greekRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\balpha\b`), "α"},
	{regexp.MustCompile(`(?i)\bbeta\b`), "β"},
	{regexp.MustCompile(`(?i)\bgamma\b`), "γ"},
	{regexp.MustCompile(`(?i)\bdelta\b`), "δ"},
	{regexp.MustCompile(`(?i)\bepsilon\b`), "ε"},
	{regexp.MustCompile(`(?i)\bzeta\b`), "ζ"},
	{regexp.MustCompile(`(?i)\btheta\b`), "θ"},
	{regexp.MustCompile(`(?i)\bkappa\b`), "κ"},
	{regexp.MustCompile(`(?i)\blambda\b`), "λ"},
	{regexp.MustCompile(`(?i)\bsigma\b`), "σ"},
	{regexp.MustCompile(`(?i)\bomega\b`), "ω"},
}

var (
	// stereoRe unwraps parenthesised stereochemistry descriptors: (+), (-),
	// (±), (R), (S), (E), (Z).  Runs before punctuation stripping so the
	// parentheses still carry meaning.
	stereoRe = regexp.MustCompile(`\(([+\-±RSEZrsez])\)`)

	// multiplicativeRe joins multiplicative prefixes to the following word:
	// "di-chloromethane" → "dichloromethane".
	multiplicativeRe = regexp.MustCompile(`(?i)\b(mono|di|tri|tetra|penta|hexa|hepta|octa|nona|deca|poly)[\-‐‑–—]`)

	// punctRe maps brackets, commas, dashes, quotes, semicolons, and colons
	// to spaces.  Periods survive so that decimal locants ("2.4") keep their
	// shape until the trailing-period trim.
	punctRe = regexp.MustCompile(`[(){}\[\],;:'"` + "`" + `\-‐‑‒–—―−]`)

	spaceRe = regexp.MustCompile(`\s+`)
)

// ─────────────────────────────────────────────────────────────────────────────
// Pipeline
// ─────────────────────────────────────────────────────────────────────────────

// Normalize runs the full pipeline over raw and returns the derived Key.
// It is total: any input, including empty or garbage text, yields a Key
// (possibly with an empty Primary).  It never errors.
//
// Pipeline order:
//  1. Unicode NFKC fold
//  2. whitespace collapse
//  3. stereochemistry unwrapping
//  4. abbreviation expansion (tert-, sec-, o-/m-/p-, ...)
//  5. multiplicative-prefix joining (di-, tri-, ...)
//  6. Greek letter spell-out → symbol
//  7. punctuation → spaces
//  8. trailing-period trim
//  9. case folding
//  10. whitespace collapse + trim
//
// The pipeline is idempotent: Normalize(k.Primary).Primary == k.Primary.
func (n *Normalizer) Normalize(raw string) Key {
	key := Key{SchemaVersion: NormalizationVersion}
	if strings.TrimSpace(raw) == "" {
		return key
	}

	key.CAS = ExtractCAS(raw)
	key.Primary = n.normalizeText(raw)

	stripped, removed := n.qualifiers.StripQualifiers(key.Primary)
	if stripped != key.Primary && stripped != "" {
		key.Stripped = stripped
		key.Qualifiers = removed
	}

	key.Variants = n.generateVariants(key.Primary)
	return key
}

// NormalizeText applies only the text pipeline, without qualifier stripping,
// CAS extraction, or variant generation.  Matching stages use it to bring
// query text onto the same footing as stored keys.
func (n *Normalizer) NormalizeText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return n.normalizeText(raw)
}

func (n *Normalizer) normalizeText(text string) string {
	text = norm.NFKC.String(text)
	text = spaceRe.ReplaceAllString(text, " ")
	text = stereoRe.ReplaceAllString(text, "$1 ")

	for _, rule := range abbreviationRules {
		text = rule.re.ReplaceAllString(text, rule.repl)
	}
	text = multiplicativeRe.ReplaceAllString(text, "$1")
	for _, rule := range greekRules {
		text = rule.re.ReplaceAllString(text, rule.repl)
	}

	text = punctRe.ReplaceAllString(text, " ")
	text = strings.TrimRight(text, ".")
	text = n.caser.String(text)
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
