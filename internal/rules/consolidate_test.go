package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConsolidator() *Consolidator {
	return NewConsolidator(DefaultRuleConfig(), DefaultReference())
}

func obsMap(obs ...StoreProductObservation) map[RowKey]StoreProductObservation {
	m := make(map[RowKey]StoreProductObservation, len(obs))
	for _, o := range obs {
		m[RowKey{StoreCode: o.StoreCode, SPUCode: o.SPUCode}] = o
	}
	return m
}

func TestConsolidateNetsPositiveAndNegative(t *testing.T) {
	// Rule 8 wants -3, rule 11 wants +2, no increase flags armed: the
	// components are netted.
	c := newConsolidator()

	out, err := c.Consolidate(RuleOutputs{
		Imbalance: []RuleRecommendation{{
			StoreCode: "1001", SPUCode: "T001", SubcategoryName: "连衣裙",
			ClusterID: 3, Source: SourceImbalance, IsImbalanced: true, QuantityChange: -3,
		}},
		Opportunity: []RuleRecommendation{{
			StoreCode: "1001", SPUCode: "T001", SubcategoryName: "连衣裙",
			ClusterID: 3, Source: SourceMissedOpportunity, QuantityChange: 2, SuggestionOnly: true,
		}},
	}, obsMap(StoreProductObservation{
		StoreCode: "1001", SPUCode: "T001", Quantity: 20, ClusterID: 3,
	}), nil)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, -1.0, out[0].RecommendedQuantityChange)
	assert.Equal(t, Applied, out[0].State)
	assert.Equal(t, 3, out[0].ClusterID)
	assert.ElementsMatch(t, []RuleSource{SourceImbalance, SourceMissedOpportunity}, out[0].RuleSources)
}

func TestConsolidateBlockedNegativeKeepsPositive(t *testing.T) {
	// A rule 9 increase arms the gate; the overcapacity reduction is
	// suppressed and only the positive component survives.
	c := newConsolidator()

	out, err := c.Consolidate(RuleOutputs{
		BelowMinimum: []RuleRecommendation{{
			StoreCode: "1001", SPUCode: "T001", SubcategoryName: "连衣裙",
			ClusterID: 3, Source: SourceBelowMinimum, Rule9Applied: true, QuantityChange: 2,
		}},
		Overcapacity: []RuleRecommendation{{
			StoreCode: "1001", SPUCode: "T001", SubcategoryName: "连衣裙",
			ClusterID: 3, Source: SourceOvercapacity, QuantityChange: -5,
		}},
	}, nil, nil)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2.0, out[0].RecommendedQuantityChange)
	assert.Equal(t, Applied, out[0].State)
	assert.Contains(t, out[0].GateReason, "below-minimum")
}

func TestConsolidateSuppressedWhenOnlyBlockedReduction(t *testing.T) {
	c := newConsolidator()

	out, err := c.Consolidate(RuleOutputs{
		Missing: []RuleRecommendation{{
			StoreCode: "1001", SPUCode: "T002", SubcategoryName: "连衣裙",
			ClusterID: 3, Source: SourceMissingCategory, Recommendation: "ADD", QuantityChange: 3,
		}},
		Overcapacity: []RuleRecommendation{{
			StoreCode: "1001", SPUCode: "T001", SubcategoryName: "连衣裙",
			ClusterID: 3, Source: SourceOvercapacity, QuantityChange: -5,
		}},
	}, nil, map[RowKey]EligibilityStatus{
		{StoreCode: "1001", SPUCode: "T001"}: Ineligible,
	})

	require.NoError(t, err)
	require.Len(t, out, 2)

	// T001: only a blocked reduction, suppressed with reason kept.
	var t001, t002 ConsolidatedRecommendation
	for _, rec := range out {
		switch rec.SPUCode {
		case "T001":
			t001 = rec
		case "T002":
			t002 = rec
		}
	}
	assert.Equal(t, Suppressed, t001.State)
	assert.Zero(t, t001.RecommendedQuantityChange)
	assert.Contains(t, t001.GateReason, "ineligible")

	assert.Equal(t, Applied, t002.State)
	assert.Equal(t, 3.0, t002.RecommendedQuantityChange)
}

func TestConsolidateNoReductionSurvivesPriorIncrease(t *testing.T) {
	// Property: whenever any step 7/8/9 increase flag is armed for a row,
	// the consolidated change is non-negative.
	c := newConsolidator()

	outputs := RuleOutputs{
		Missing: []RuleRecommendation{{
			StoreCode: "A", SPUCode: "X", ClusterID: 1,
			Source: SourceMissingCategory, Recommendation: "ADD", QuantityChange: 1,
		}},
		Imbalance: []RuleRecommendation{
			{StoreCode: "B", SPUCode: "X", ClusterID: 1, Source: SourceImbalance, IsImbalanced: true, QuantityChange: 2},
			{StoreCode: "A", SPUCode: "X", ClusterID: 1, Source: SourceImbalance, IsImbalanced: true, QuantityChange: -6},
		},
		BelowMinimum: []RuleRecommendation{{
			StoreCode: "C", SPUCode: "X", ClusterID: 1, Source: SourceBelowMinimum, Rule9Applied: true, QuantityChange: 1,
		}},
		Overcapacity: []RuleRecommendation{
			{StoreCode: "A", SPUCode: "X", ClusterID: 1, Source: SourceOvercapacity, QuantityChange: -4},
			{StoreCode: "B", SPUCode: "X", ClusterID: 1, Source: SourceOvercapacity, QuantityChange: -4},
			{StoreCode: "C", SPUCode: "X", ClusterID: 1, Source: SourceOvercapacity, QuantityChange: -4},
		},
	}

	out, err := c.Consolidate(outputs, nil, nil)
	require.NoError(t, err)

	flags := BuildIncreaseFlags(outputs.Missing, outputs.Imbalance, outputs.BelowMinimum)
	for _, rec := range out {
		key := RowKey{StoreCode: rec.StoreCode, SPUCode: rec.SPUCode}
		f := flags[key]
		if f.Step7Recommended || f.Step8Adjusted || f.Step9Applied {
			assert.GreaterOrEqual(t, rec.RecommendedQuantityChange, 0.0,
				"store %s spu %s", rec.StoreCode, rec.SPUCode)
		}
	}
}

func TestConsolidateCapsEligibleReduction(t *testing.T) {
	// Default cap is 50% of current quantity: a -9 proposal against 10
	// units shrinks to -5.
	c := newConsolidator()

	out, err := c.Consolidate(RuleOutputs{
		Overcapacity: []RuleRecommendation{{
			StoreCode: "1001", SPUCode: "T001", SubcategoryName: "连衣裙",
			ClusterID: 3, Source: SourceOvercapacity, QuantityChange: -9,
		}},
	}, obsMap(StoreProductObservation{
		StoreCode: "1001", SPUCode: "T001", Quantity: 10, ClusterID: 3,
	}), nil)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, -5.0, out[0].RecommendedQuantityChange)

	// Core subcategories use the tighter cap: 20% of 10 is -2.
	out, err = c.Consolidate(RuleOutputs{
		Overcapacity: []RuleRecommendation{{
			StoreCode: "1001", SPUCode: "T001", SubcategoryName: "直筒裤",
			ClusterID: 3, Source: SourceOvercapacity, QuantityChange: -9,
		}},
	}, obsMap(StoreProductObservation{
		StoreCode: "1001", SPUCode: "T001", Quantity: 10, ClusterID: 3,
	}), nil)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, -2.0, out[0].RecommendedQuantityChange)
}

func TestConsolidateEmptyOutputs(t *testing.T) {
	// Missing upstream outputs are empty sets, not errors.
	out, err := newConsolidator().Consolidate(RuleOutputs{}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestConsolidateClusterConflictIsFatal(t *testing.T) {
	_, err := newConsolidator().Consolidate(RuleOutputs{
		Missing: []RuleRecommendation{{
			StoreCode: "A", SPUCode: "X", ClusterID: 1,
			Source: SourceMissingCategory, Recommendation: "ADD", QuantityChange: 1,
		}},
		Performance: []RuleRecommendation{{
			StoreCode: "A", SPUCode: "X", ClusterID: 2,
			Source: SourcePerformance, OpportunityTier: TierHigh,
		}},
	}, nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster id conflict")
}

func TestConsolidateDeduplicatesWithinRule(t *testing.T) {
	// Duplicate rows from a single rule are not summed twice.
	out, err := newConsolidator().Consolidate(RuleOutputs{
		Missing: []RuleRecommendation{
			{StoreCode: "A", SPUCode: "X", ClusterID: 1, Source: SourceMissingCategory, Recommendation: "ADD", QuantityChange: 3},
			{StoreCode: "A", SPUCode: "X", ClusterID: 1, Source: SourceMissingCategory, Recommendation: "ADD", QuantityChange: 3},
		},
	}, nil, nil)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 3.0, out[0].RecommendedQuantityChange)
}

func TestConsolidatePerformanceOnlyRow(t *testing.T) {
	out, err := newConsolidator().Consolidate(RuleOutputs{
		Performance: []RuleRecommendation{{
			StoreCode: "A", SPUCode: "X", ClusterID: 1,
			Source: SourcePerformance, OpportunityTier: TierMedium,
			Rationale: "sales gap 30% (MEDIUM)",
		}},
	}, nil, nil)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Zero(t, out[0].RecommendedQuantityChange)
	assert.Equal(t, Applied, out[0].State)
	assert.Contains(t, out[0].Rationale, "step12")
}
