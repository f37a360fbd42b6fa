package analyte

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/envlytics/analyte-resolver/pkg/errors"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

func TestAnalyteValidate(t *testing.T) {
	valid := Analyte{
		ID:            common.AnalyteID("REG153_001"),
		PreferredName: "Benzene",
		Type:          TypeSingleSubstance,
		CASNumber:     "71-43-2",
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Analyte)
	}{
		{"missing id", func(a *Analyte) { a.ID = "" }},
		{"missing name", func(a *Analyte) { a.PreferredName = "" }},
		{"unknown type", func(a *Analyte) { a.Type = "mystery" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			err := a.Validate()
			assert.Error(t, err)
			assert.Equal(t, errors.CodeInvalidParam, errors.GetCode(err))
		})
	}
}

func TestSynonymValidate(t *testing.T) {
	s := Synonym{
		AnalyteID:  common.AnalyteID("REG153_001"),
		Raw:        "Benzol",
		Normalized: "benzol",
		Source:     SourceBootstrap,
		Confidence: 0.95,
	}
	assert.NoError(t, s.Validate())
	assert.False(t, s.Deprecated())

	s.Confidence = 1.5
	assert.Error(t, s.Validate())

	s.Confidence = 0
	assert.NoError(t, s.Validate())
	assert.True(t, s.Deprecated())
}

func TestLabVariantCooldown(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cooldown := 7 * 24 * time.Hour

	v := LabVariant{Vendor: "ALS", ObservedText: "benzene total"}
	assert.False(t, v.InCooldown(now, cooldown), "no collision means no cooldown")

	recent := now.Add(-3 * 24 * time.Hour)
	v.LastCollision = &recent
	assert.True(t, v.InCooldown(now, cooldown))

	old := now.Add(-8 * 24 * time.Hour)
	v.LastCollision = &old
	assert.False(t, v.InCooldown(now, cooldown))
}

func TestTypeValid(t *testing.T) {
	for _, typ := range []Type{TypeSingleSubstance, TypeFractionOrGroup, TypeSuite, TypeParameter, TypeCalculated} {
		assert.True(t, typ.Valid(), string(typ))
	}
	assert.False(t, Type("").Valid())
}
