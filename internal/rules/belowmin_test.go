package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBelowMinRule() *BelowMinimumRule {
	return NewBelowMinimumRule(DefaultRuleConfig(), DefaultReference())
}

func TestBelowMinimumCoreBypassesSkips(t *testing.T) {
	// Core subcategory with ineligible status and no demand signal: both
	// skip steps are bypassed and the row is still evaluated.
	r := newBelowMinRule()

	res := r.Evaluate(BelowMinimumInput{
		StoreCode:         "1001",
		SPUCode:           "P100",
		SubcategoryName:   "直筒裤",
		CurrentQuantity:   0.5,
		EligibilityStatus: Ineligible,
		AdjustedByStep8:   false,
		ClusterP10Rate:    fptr(3.0),
	})

	assert.True(t, res.IsCoreSubcategory)
	assert.Equal(t, BelowMinimum, res.Status)
	assert.Equal(t, ThresholdClusterP10, res.MinimumReferenceSource)
	assert.True(t, res.Rule9Applied)
	assert.GreaterOrEqual(t, res.RecommendedQuantityChange, 1)
}

func TestBelowMinimumSkippedIneligibleNonCore(t *testing.T) {
	res := newBelowMinRule().Evaluate(BelowMinimumInput{
		SubcategoryName:   "羽绒服",
		CurrentQuantity:   0,
		EligibilityStatus: Ineligible,
	})
	assert.Equal(t, SkippedIneligible, res.Status)
	assert.False(t, res.Rule9Applied)
	assert.Zero(t, res.RecommendedQuantityChange)
}

func TestBelowMinimumStep8SkipAppliesToCore(t *testing.T) {
	// The already-adjusted skip is not bypassed by core status.
	res := newBelowMinRule().Evaluate(BelowMinimumInput{
		SubcategoryName:   "直筒裤",
		CurrentQuantity:   0.5,
		EligibilityStatus: Eligible,
		AdjustedByStep8:   true,
		ClusterP10Rate:    fptr(3.0),
	})
	assert.Equal(t, SkippedStep8, res.Status)
	assert.True(t, res.IsCoreSubcategory)
}

func TestBelowMinimumSkippedNoDemand(t *testing.T) {
	cfg := DefaultRuleConfig()
	cfg.RequireSellThroughSignal = true
	r := NewBelowMinimumRule(cfg, DefaultReference())

	res := r.Evaluate(BelowMinimumInput{
		SubcategoryName:   "连衣裙",
		CurrentQuantity:   0.5,
		EligibilityStatus: Eligible,
		RecentSalesUnits:  0,
		SellThroughRate:   0,
		ClusterP10Rate:    fptr(3.0),
	})
	assert.Equal(t, SkippedNoDemand, res.Status)

	// With the signal requirement off, the same row is evaluated.
	cfg.RequireSellThroughSignal = false
	r = NewBelowMinimumRule(cfg, DefaultReference())
	res = r.Evaluate(BelowMinimumInput{
		SubcategoryName:   "连衣裙",
		CurrentQuantity:   0.5,
		EligibilityStatus: Eligible,
		ClusterP10Rate:    fptr(3.0),
	})
	assert.Equal(t, BelowMinimum, res.Status)
}

func TestBelowMinimumThresholdFallbackOrder(t *testing.T) {
	r := newBelowMinRule()

	base := BelowMinimumInput{
		SubcategoryName:   "直筒裤",
		CurrentQuantity:   100,
		EligibilityStatus: Eligible,
		RecentSalesUnits:  5,
	}

	in := base
	in.ManualPlanMinimum = fptr(7)
	in.ClusterP10Rate = fptr(4)
	res := r.Evaluate(in)
	assert.Equal(t, ThresholdManual, res.MinimumReferenceSource)
	assert.Equal(t, 7.0, res.MinimumThreshold)

	// Non-positive manual value falls through to the cluster P10.
	in = base
	in.ManualPlanMinimum = fptr(0)
	in.ClusterP10Rate = fptr(4)
	res = r.Evaluate(in)
	assert.Equal(t, ThresholdClusterP10, res.MinimumReferenceSource)
	assert.Equal(t, 4.0, res.MinimumThreshold)

	in = base
	res = r.Evaluate(in)
	assert.Equal(t, ThresholdGlobal, res.MinimumReferenceSource)
	assert.Equal(t, DefaultRuleConfig().GlobalMinimumQuantity, res.MinimumThreshold)
}

func TestBelowMinimumExactThresholdIsAbove(t *testing.T) {
	// Quantity exactly at the minimum counts as above minimum.
	res := newBelowMinRule().Evaluate(BelowMinimumInput{
		SubcategoryName:   "直筒裤",
		CurrentQuantity:   3,
		EligibilityStatus: Eligible,
		RecentSalesUnits:  2,
		ClusterP10Rate:    fptr(3),
	})
	assert.Equal(t, AboveMinimum, res.Status)
	assert.False(t, res.Rule9Applied)
}

func TestBelowMinimumSellThroughValidation(t *testing.T) {
	r := newBelowMinRule()

	// Recent sales alone are a valid signal.
	res := r.Evaluate(BelowMinimumInput{
		SubcategoryName:   "连衣裙",
		CurrentQuantity:   1,
		EligibilityStatus: Eligible,
		RecentSalesUnits:  1,
		ClusterP10Rate:    fptr(5),
	})
	assert.True(t, res.SellThroughValid)
	assert.Equal(t, BelowMinimum, res.Status)

	// Sell-through against half the cluster median.
	res = r.Evaluate(BelowMinimumInput{
		SubcategoryName:          "连衣裙",
		CurrentQuantity:          1,
		EligibilityStatus:        Eligible,
		SellThroughRate:          0.2,
		ClusterMedianSellThrough: fptr(0.4),
		ClusterP10Rate:           fptr(5),
	})
	assert.True(t, res.SellThroughValid)

	// Below half the median: invalid.
	res = r.Evaluate(BelowMinimumInput{
		SubcategoryName:          "连衣裙",
		CurrentQuantity:          1,
		EligibilityStatus:        Eligible,
		SellThroughRate:          0.19,
		ClusterMedianSellThrough: fptr(0.4),
		ClusterP10Rate:           fptr(5),
	})
	assert.False(t, res.SellThroughValid)
	assert.Equal(t, SkippedNoDemand, res.Status)
}

func TestConservativeIncreasePicksMostRestrictive(t *testing.T) {
	cfg := DefaultRuleConfig()
	cfg.MaxIncreasePercentage = 0.2
	cfg.MinBoostQuantity = 1
	r := NewBelowMinimumRule(cfg, DefaultReference())

	// Candidates: gap 8, boost floor 1, 20% of baseline 20 = 4. Min is 1.
	got := r.ConservativeIncrease(2, 10, nil, nil, fptr(20))
	assert.Equal(t, 1, got)
}

func TestConservativeIncreaseCandidates(t *testing.T) {
	cfg := DefaultRuleConfig()
	cfg.MinBoostQuantity = 6
	cfg.CapacityIncreaseFraction = 0.1
	r := NewBelowMinimumRule(cfg, DefaultReference())

	// Gap 3 beats boost floor 6.
	assert.Equal(t, 3, r.ConservativeIncrease(2, 5, nil, nil, nil))

	// Capacity fraction wins: 10% of 20 = 2.
	assert.Equal(t, 2, r.ConservativeIncrease(2, 5, nil, fptr(20), nil))

	// Case pack caps below the gap.
	cfg.MinBoostQuantity = 1
	r = NewBelowMinimumRule(cfg, DefaultReference())
	assert.Equal(t, 1, r.ConservativeIncrease(0, 12, fptr(4), nil, nil))

	// Fractional winner is ceiled.
	assert.Equal(t, 1, r.ConservativeIncrease(4.5, 5, nil, nil, nil))
}

func TestConservativeIncreaseFallbackNeverBelowOne(t *testing.T) {
	cfg := DefaultRuleConfig()
	cfg.MinBoostQuantity = 0
	r := NewBelowMinimumRule(cfg, DefaultReference())

	// No positive candidate at all: floored at one unit.
	got := r.ConservativeIncrease(10, 5, nil, nil, nil)
	require.GreaterOrEqual(t, got, 1)
}

func TestBelowMinimumChangeAtLeastOneWhenApplied(t *testing.T) {
	r := newBelowMinRule()
	for _, qty := range []float64{0, 0.5, 1.9, 2.99} {
		res := r.Evaluate(BelowMinimumInput{
			SubcategoryName:   "直筒裤",
			CurrentQuantity:   qty,
			EligibilityStatus: Eligible,
			RecentSalesUnits:  3,
			ClusterP10Rate:    fptr(3),
		})
		require.Equal(t, BelowMinimum, res.Status)
		assert.GreaterOrEqual(t, res.RecommendedQuantityChange, 1, "qty=%v", qty)
	}
}
