package vendorprior

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envlytics/analyte-resolver/internal/domain/analyte"
	"github.com/envlytics/analyte-resolver/internal/testutil"
	"github.com/envlytics/analyte-resolver/pkg/types/common"
)

func newService(t *testing.T, now time.Time) (*Service, *testutil.InMemoryVariantRepo, *testutil.InMemoryConfirmationRepo, *time.Time) {
	t.Helper()
	variants := testutil.NewInMemoryVariantRepo()
	confirmations := testutil.NewInMemoryConfirmationRepo()
	svc := NewService(variants, confirmations, DefaultParams(), nil)
	clock := now
	svc.now = func() time.Time { return clock }
	return svc, variants, confirmations, &clock
}

func TestRecordObservationCreatesAndValidates(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	svc, _, _, _ := newService(t, now)
	ctx := context.Background()

	v, err := svc.RecordObservation(ctx, "ALS", "benzene total", "REG153_001", analyte.ValidationHigh)
	require.NoError(t, err)
	assert.Equal(t, 1, v.FrequencyCount)
	assert.Equal(t, 0, v.CollisionCount)
	assert.EqualValues(t, "REG153_001", v.ValidatedAnalyteID)
	assert.Equal(t, analyte.ValidationHigh, v.ValidationConfidence)

	// same mapping again: frequency grows, no collision
	v, err = svc.RecordObservation(ctx, "ALS", "benzene total", "REG153_001", analyte.ValidationHigh)
	require.NoError(t, err)
	assert.Equal(t, 2, v.FrequencyCount)
	assert.Equal(t, 0, v.CollisionCount)
}

func TestCollisionCountingProperty(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	svc, variants, _, _ := newService(t, now)
	ctx := context.Background()

	_, err := svc.RecordObservation(ctx, "ALS", "xylenes", "REG153_030", analyte.ValidationHigh)
	require.NoError(t, err)

	// k subsequent validations with a different analyte each time
	mappings := []string{"REG153_031", "REG153_030", "REG153_031"}
	for _, m := range mappings {
		_, err := svc.RecordObservation(ctx, "ALS", "xylenes", common.AnalyteID(m), analyte.ValidationHigh)
		require.NoError(t, err)
	}

	v, err := variants.Get(ctx, "ALS", "xylenes")
	require.NoError(t, err)
	assert.Equal(t, 3, v.CollisionCount, "every differing validation is a collision")
	assert.EqualValues(t, "REG153_031", v.ValidatedAnalyteID, "last validated wins")
	require.NotNil(t, v.LastCollision)
	assert.Equal(t, now, *v.LastCollision)
	assert.Equal(t, analyte.ValidationUnstable, v.ValidationConfidence, "over the collision limit")
}

func TestRecordConfirmationIdempotent(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	svc, _, confirmations, _ := newService(t, now)
	ctx := context.Background()

	added, err := svc.RecordConfirmation(ctx, "ALS", "toluene", 100, "REG153_011")
	require.NoError(t, err)
	assert.True(t, added, "variant is created on first confirmation")

	added, err = svc.RecordConfirmation(ctx, "ALS", "toluene", 100, "REG153_011")
	require.NoError(t, err)
	assert.False(t, added, "duplicate submission is a no-op, not an error")

	added, err = svc.RecordConfirmation(ctx, "ALS", "toluene", 101, "REG153_011")
	require.NoError(t, err)
	assert.True(t, added)

	assert.Len(t, confirmations.Confirmations, 2)
}

func TestConsensusStrength(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	svc, variants, _, _ := newService(t, now)
	ctx := context.Background()

	_, err := svc.RecordObservation(ctx, "ALS", "lead", "REG153_050", analyte.ValidationHigh)
	require.NoError(t, err)
	for _, sub := range []int64{1, 2, 3} {
		_, err := svc.RecordConfirmation(ctx, "ALS", "lead", common.SubmissionID(sub), "REG153_050")
		require.NoError(t, err)
	}
	// one dissenting confirmation does not count toward the current mapping
	_, err = svc.RecordConfirmation(ctx, "ALS", "lead", 4, "REG153_051")
	require.NoError(t, err)

	v, err := variants.Get(ctx, "ALS", "lead")
	require.NoError(t, err)
	n, err := svc.ConsensusStrength(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// a collision discounts consensus by one
	_, err = svc.RecordObservation(ctx, "ALS", "lead", "REG153_051", analyte.ValidationHigh)
	require.NoError(t, err)
	_, err = svc.RecordObservation(ctx, "ALS", "lead", "REG153_050", analyte.ValidationHigh)
	require.NoError(t, err)
	v, err = variants.Get(ctx, "ALS", "lead")
	require.NoError(t, err)
	n, err = svc.ConsensusStrength(ctx, v)
	require.NoError(t, err)
	// the three agreeing confirmations were invalidated when the mapping
	// flipped away; coming back does not resurrect them
	assert.Equal(t, 0, n)
}

func TestLookupGating(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	svc, _, _, clock := newService(t, now)
	ctx := context.Background()

	// unknown variant
	p, err := svc.Lookup(ctx, "ALS", "nickel")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = svc.RecordObservation(ctx, "ALS", "nickel", "REG153_060", analyte.ValidationHigh)
	require.NoError(t, err)

	// validated but unconfirmed: no consensus, no boost
	p, err = svc.Lookup(ctx, "ALS", "nickel")
	require.NoError(t, err)
	assert.Nil(t, p)

	for _, sub := range []int64{10, 11, 12} {
		_, err := svc.RecordConfirmation(ctx, "ALS", "nickel", common.SubmissionID(sub), "REG153_060")
		require.NoError(t, err)
	}
	p, err = svc.Lookup(ctx, "ALS", "nickel")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.EqualValues(t, "REG153_060", p.AnalyteID)
	assert.Equal(t, 3, p.Consensus)
	assert.Equal(t, 1.0, p.Decay, "fresh variant decays nothing")

	// a collision puts the variant into cooldown
	_, err = svc.RecordObservation(ctx, "ALS", "nickel", "REG153_061", analyte.ValidationHigh)
	require.NoError(t, err)
	p, err = svc.Lookup(ctx, "ALS", "nickel")
	require.NoError(t, err)
	assert.Nil(t, p, "cooldown suppresses boosting")

	// after the cooldown, fresh confirmations outweighing the collision
	// discount let it boost again with the new mapping
	*clock = now.Add(8 * 24 * time.Hour)
	for _, sub := range []int64{13, 14} {
		_, err = svc.RecordConfirmation(ctx, "ALS", "nickel", common.SubmissionID(sub), "REG153_061")
		require.NoError(t, err)
	}
	p, err = svc.Lookup(ctx, "ALS", "nickel")
	require.NoError(t, err)
	require.NotNil(t, p, "cooldown has passed")
	assert.EqualValues(t, "REG153_061", p.AnalyteID)
	assert.Equal(t, 1, p.Consensus, "two agreeing submissions minus one collision")
}

func TestDecayMath(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	svc, _, _, clock := newService(t, now)
	v := &analyte.LabVariant{LastSeen: now}

	assert.Equal(t, 1.0, svc.decay(v))

	*clock = now.Add(90 * 24 * time.Hour) // half the window
	assert.InDelta(t, 1-0.10*0.5, svc.decay(v), 1e-9)

	*clock = now.Add(180 * 24 * time.Hour) // full window
	assert.InDelta(t, 0.90, svc.decay(v), 1e-9)

	*clock = now.Add(720 * 24 * time.Hour) // far beyond: floored
	assert.InDelta(t, 0.90, svc.decay(v), 1e-9)
}
