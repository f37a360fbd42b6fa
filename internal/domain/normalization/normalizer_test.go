package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePipeline(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"parenthesised ring position", "Benzo(a)pyrene", "benzo a pyrene"},
		{"comma locants", "1,4-Dioxane", "1 4 dioxane"},
		{"tert prefix", "tert-Butanol", "tertiary butanol"},
		{"sec prefix", "sec-Butylbenzene", "secondary butylbenzene"},
		{"ortho single letter", "o-Xylene", "ortho xylene"},
		{"para single letter", "p-Cresol", "para cresol"},
		{"greek spelled out", "alpha-Hexachlorocyclohexane", "α hexachlorocyclohexane"},
		{"multiplicative join", "Tri-chloroethylene", "trichloroethylene"},
		{"trailing period", "Benzene.", "benzene"},
		{"whitespace mess", "  1, 2,4  - Trichlorobenzene ", "1 2 4 trichlorobenzene"},
		{"stereo descriptor", "(R)-2-Butanol", "r 2 butanol"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.in).Primary)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer()
	inputs := []string{
		"Benzo(a)pyrene",
		"1,4-Dioxane",
		"tert-Butanol",
		"o-Xylene",
		"alpha-BHC",
		"Chromium, Hexavalent",
		"N-Nitrosodimethylamine",
		"Lead (Pb), Total",
		"PHC F2",
	}
	for _, in := range inputs {
		first := n.Normalize(in).Primary
		second := n.Normalize(first).Primary
		assert.Equal(t, first, second, "normalization must be idempotent for %q", in)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	n := NewNormalizer()
	a := n.Normalize("1,2,4-Trichlorobenzene")
	b := n.Normalize("1,2,4-Trichlorobenzene")
	assert.Equal(t, a, b)
}

func TestNormalizeQualifierStripping(t *testing.T) {
	n := NewNormalizer()

	key := n.Normalize("Iron (Total Recoverable)")
	assert.Equal(t, "iron total recoverable", key.Primary)
	assert.Equal(t, "iron", key.Stripped)
	assert.Contains(t, key.Qualifiers, "total recoverable")

	// Species-distinct qualifiers are never stripped.
	key = n.Normalize("Chromium, Hexavalent")
	assert.Equal(t, "chromium hexavalent", key.Primary)
	assert.Empty(t, key.Stripped)

	key = n.Normalize("Nitrate as N")
	assert.Empty(t, key.Stripped)
}

func TestNormalizeCASExtraction(t *testing.T) {
	n := NewNormalizer()
	key := n.Normalize("Benzene (CAS: 71-43-2)")
	assert.Equal(t, "71-43-2", key.CAS)

	key = n.Normalize("Toluene")
	assert.Empty(t, key.CAS)
}

func TestNormalizeSchemaVersion(t *testing.T) {
	n := NewNormalizer()
	assert.Equal(t, NormalizationVersion, n.Normalize("Benzene").SchemaVersion)
}

func TestGenerateVariantsLocants(t *testing.T) {
	n := NewNormalizer()

	key := n.Normalize("1,2,4-Trichlorobenzene")
	require.Equal(t, "1 2 4 trichlorobenzene", key.Primary)
	assert.Contains(t, key.Variants, "trichlorobenzene 1 2 4")
	assert.Contains(t, key.Variants, "trichlorobenzene")
	assert.NotContains(t, key.Variants, key.Primary)

	// Ontario trailing style maps back to the leading form.
	key = n.Normalize("Trichlorobenzene 1,2,4")
	require.Equal(t, "trichlorobenzene 1 2 4", key.Primary)
	assert.Contains(t, key.Variants, "1 2 4 trichlorobenzene")
}

func TestGenerateVariantsAromatic(t *testing.T) {
	n := NewNormalizer()

	key := n.Normalize("1,2-Dichlorobenzene")
	assert.Contains(t, key.Variants, "ortho dichlorobenzene")

	key = n.Normalize("ortho-Dichlorobenzene")
	assert.Contains(t, key.Variants, "1 2 dichlorobenzene")

	// 1,4-dioxane picks up its para alias.
	key = n.Normalize("1,4-Dioxane")
	assert.Contains(t, key.Variants, "para dioxane")
}

func TestGenerateVariantsConcatenated(t *testing.T) {
	n := NewNormalizer()
	key := n.Normalize("1,4-Dioxane")
	assert.Contains(t, key.Variants, "14dioxane")
}

func TestParseLocants(t *testing.T) {
	assert.Equal(t, []int{1, 2, 4}, ParseLocants("1 2 4"))
	assert.Equal(t, []int{1, 2}, ParseLocants("2,1"))
	assert.Equal(t, []int{1, 2}, ParseLocants("1-2"))
	assert.Nil(t, ParseLocants("abc"))
}

func TestKeyAllForms(t *testing.T) {
	k := Key{
		Primary:  "1 2 dichlorobenzene",
		Stripped: "",
		Variants: []string{"dichlorobenzene 1 2", "ortho dichlorobenzene", "1 2 dichlorobenzene"},
	}
	forms := k.AllForms()
	assert.Equal(t, []string{"1 2 dichlorobenzene", "dichlorobenzene 1 2", "ortho dichlorobenzene"}, forms)

	withStripped := Key{Primary: "iron total", Stripped: "iron"}
	assert.Equal(t, []string{"iron total", "iron"}, withStripped.AllForms())
}
