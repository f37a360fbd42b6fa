package normalization

import (
	"regexp"
	"sort"
	"strings"
)

// aromaticPositions maps position descriptors to their numeric locant pair.
// Both directions are generated so that "ortho xylene" and "1 2 xylene" can
// find each other.
var aromaticPositions = map[string]string{
	"ortho": "1 2",
	"meta":  "1 3",
	"para":  "1 4",
}

var numericAromatic = map[string]string{
	"1 2": "ortho",
	"1 3": "meta",
	"1 4": "para",
}

var (
	// leadingLocantsRe matches a run of locant digits at the start of a
	// normalized name: "1 2 4 trichlorobenzene".
	leadingLocantsRe = regexp.MustCompile(`^((?:\d+ )+)(\pL.*)$`)

	// trailingLocantsRe matches the Ontario trailing style after
	// normalization: "trichlorobenzene 1 2 4".
	trailingLocantsRe = regexp.MustCompile(`^(.*\pL) ((?:\d+ )*\d+)$`)
)

// generateVariants emits the bounded set of alternative normalized forms for
// a normalized primary key.  The primary itself is never included.  Output
// order is deterministic.
func (n *Normalizer) generateVariants(primary string) []string {
	if primary == "" {
		return nil
	}
	set := make(map[string]bool)
	add := func(v string) {
		v = strings.TrimSpace(spaceRe.ReplaceAllString(v, " "))
		if v != "" && v != primary {
			set[v] = true
		}
	}

	// Locant repositioning.
	if m := leadingLocantsRe.FindStringSubmatch(primary); m != nil {
		locants := strings.TrimSpace(m[1])
		base := m[2]
		add(base + " " + locants)
		add(base)
		if desc, ok := numericAromatic[locants]; ok {
			add(desc + " " + base)
		}
	} else if m := trailingLocantsRe.FindStringSubmatch(primary); m != nil {
		base := m[1]
		locants := m[2]
		add(locants + " " + base)
		add(base)
		if desc, ok := numericAromatic[locants]; ok {
			add(desc + " " + base)
		}
	}

	// Aromatic descriptor → numeric locants.
	for desc, numeric := range aromaticPositions {
		if strings.HasPrefix(primary, desc+" ") {
			base := strings.TrimPrefix(primary, desc+" ")
			add(numeric + " " + base)
		}
	}

	// Concatenated form: tolerates sources that ran tokens together
	// ("14dioxane" for "1 4 dioxane").
	if strings.Contains(primary, " ") {
		add(strings.ReplaceAll(primary, " ", ""))
	}

	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ParseLocants extracts the integer locant positions from a locant run such
// as "1 2 4" or "1,2-4", sorted ascending.  Non-numeric fragments are
// skipped.
func ParseLocants(s string) []int {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '-'
	})
	var out []int
	for _, f := range fields {
		v := 0
		ok := f != ""
		for _, r := range f {
			if r < '0' || r > '9' {
				ok = false
				break
			}
			v = v*10 + int(r-'0')
		}
		if ok {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
