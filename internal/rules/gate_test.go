package rules

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGate() *ReductionGate {
	return NewReductionGate(DefaultRuleConfig(), DefaultReference())
}

func TestCheckBlocksStep7Unconditionally(t *testing.T) {
	g := newGate()

	// Core subcategory and ineligible status are irrelevant once a prior
	// increase exists.
	res := g.Check("直筒裤", Ineligible, IncreaseFlags{Step7Recommended: true})
	assert.Equal(t, BlockedStep7Increase, res.Eligibility)
	assert.False(t, res.CanReduce)

	res = g.Check("连衣裙", Eligible, IncreaseFlags{Step7Recommended: true})
	assert.Equal(t, BlockedStep7Increase, res.Eligibility)
	assert.False(t, res.CanReduce)
}

func TestCheckPrecedenceOrder(t *testing.T) {
	g := newGate()

	// All three flags: step 7 wins.
	res := g.Check("", Eligible, IncreaseFlags{Step7Recommended: true, Step8Adjusted: true, Step9Applied: true})
	assert.Equal(t, BlockedStep7Increase, res.Eligibility)

	// Step 8 before step 9.
	res = g.Check("", Eligible, IncreaseFlags{Step8Adjusted: true, Step9Applied: true})
	assert.Equal(t, BlockedStep8Increase, res.Eligibility)

	res = g.Check("", Eligible, IncreaseFlags{Step9Applied: true})
	assert.Equal(t, BlockedStep9Increase, res.Eligibility)

	// No increase flags: eligibility is checked next.
	res = g.Check("", Ineligible, IncreaseFlags{})
	assert.Equal(t, BlockedIneligible, res.Eligibility)
}

func TestCheckCoreSubcategoryReducedCap(t *testing.T) {
	cfg := DefaultRuleConfig()
	g := NewReductionGate(cfg, DefaultReference())

	res := g.Check("直筒裤", Eligible, IncreaseFlags{})
	assert.Equal(t, EligibleForReduction, res.Eligibility)
	assert.True(t, res.CanReduce)
	assert.Equal(t, cfg.CoreSubcategoryMaxReduction, res.MaxReductionPercentage)
	assert.Less(t, res.MaxReductionPercentage, cfg.DefaultMaxReduction)

	// Non-core gets the default cap.
	res = g.Check("连衣裙", Eligible, IncreaseFlags{})
	assert.Equal(t, cfg.DefaultMaxReduction, res.MaxReductionPercentage)

	// A zero core cap blocks outright.
	cfg.CoreSubcategoryMaxReduction = 0
	g = NewReductionGate(cfg, DefaultReference())
	res = g.Check("直筒裤", Eligible, IncreaseFlags{})
	assert.Equal(t, BlockedCoreSubcategory, res.Eligibility)
	assert.False(t, res.CanReduce)
}

func TestCheckRespectPriorIncreasesDisabled(t *testing.T) {
	cfg := DefaultRuleConfig()
	cfg.RespectPriorIncreases = false
	g := NewReductionGate(cfg, DefaultReference())

	res := g.Check("连衣裙", Eligible, IncreaseFlags{Step7Recommended: true})
	assert.Equal(t, EligibleForReduction, res.Eligibility)
}

func TestCheckCanReduceConsistentWithEligibility(t *testing.T) {
	g := newGate()
	flagSets := []IncreaseFlags{
		{}, {Step7Recommended: true}, {Step8Adjusted: true}, {Step9Applied: true},
	}
	for _, status := range []EligibilityStatus{Eligible, Ineligible, EligibilityUnknown} {
		for _, flags := range flagSets {
			for _, sub := range []string{"直筒裤", "连衣裙", ""} {
				res := g.Check(sub, status, flags)
				assert.Equal(t, res.Eligibility == EligibleForReduction, res.CanReduce)
			}
		}
	}
}

func TestCheckIsIdempotent(t *testing.T) {
	// The same inputs always give the same classification; gating an
	// already-gated candidate changes nothing.
	g := newGate()
	flags := IncreaseFlags{Step8Adjusted: true}

	first := g.Check("连衣裙", Eligible, flags)
	second := g.Check("连衣裙", Eligible, flags)
	assert.Equal(t, first, second)
}

func TestApplyBatchSummary(t *testing.T) {
	g := newGate()

	// 100 candidates: 30 with a step 7 add, 10 with a step 8 increase,
	// 5 with a step 9 increase, all disjoint.
	var candidates, step7, step8, step9 []RuleRecommendation
	for i := 0; i < 100; i++ {
		store := fmt.Sprintf("S%03d", i)
		candidates = append(candidates, RuleRecommendation{
			StoreCode:       store,
			SPUCode:         "T001",
			SubcategoryName: "连衣裙",
			Source:          SourceOvercapacity,
			QuantityChange:  -2,
		})
		switch {
		case i < 30:
			step7 = append(step7, RuleRecommendation{
				StoreCode: store, SPUCode: "T001",
				Source: SourceMissingCategory, Recommendation: "ADD", QuantityChange: 3,
			})
		case i < 40:
			step8 = append(step8, RuleRecommendation{
				StoreCode: store, SPUCode: "T001",
				Source: SourceImbalance, IsImbalanced: true, QuantityChange: 2,
			})
		case i < 45:
			step9 = append(step9, RuleRecommendation{
				StoreCode: store, SPUCode: "T001",
				Source: SourceBelowMinimum, Rule9Applied: true, QuantityChange: 1,
			})
		}
	}

	eligible, blocked, summary := g.Apply(candidates, step7, step8, step9, nil)

	assert.Equal(t, 100, summary.TotalCandidates)
	assert.Equal(t, 45, summary.BlockedTotal)
	assert.Equal(t, 30, summary.BlockedByStep7)
	assert.Equal(t, 10, summary.BlockedByStep8)
	assert.Equal(t, 5, summary.BlockedByStep9)
	assert.Equal(t, 55, summary.EligibleForReduction)
	assert.Len(t, eligible, 55)
	assert.Len(t, blocked, 45)
}

func TestApplyOverlappingFlagsCountOnce(t *testing.T) {
	g := newGate()

	cand := []RuleRecommendation{{
		StoreCode: "1001", SPUCode: "T001", SubcategoryName: "连衣裙",
		Source: SourceOvercapacity, QuantityChange: -3,
	}}
	step7 := []RuleRecommendation{{
		StoreCode: "1001", SPUCode: "T001",
		Source: SourceMissingCategory, Recommendation: "ADD", QuantityChange: 2,
	}}
	step8 := []RuleRecommendation{{
		StoreCode: "1001", SPUCode: "T001",
		Source: SourceImbalance, IsImbalanced: true, QuantityChange: 2,
	}}

	_, blocked, summary := g.Apply(cand, step7, step8, nil, nil)

	require.Len(t, blocked, 1)
	assert.Equal(t, BlockedStep7Increase, blocked[0].Result.Eligibility)
	assert.Equal(t, 1, summary.BlockedTotal)
	assert.Equal(t, 1, summary.BlockedByStep7)
	assert.Equal(t, 1, summary.BlockedByStep8)
}

func TestApplyAbsentUpstreamRowsMeanNoIncrease(t *testing.T) {
	g := newGate()

	cand := []RuleRecommendation{{
		StoreCode: "1001", SPUCode: "T001", SubcategoryName: "连衣裙",
		Source: SourceOvercapacity, QuantityChange: -3,
	}}

	eligible, blocked, summary := g.Apply(cand, nil, nil, nil, nil)

	assert.Len(t, eligible, 1)
	assert.Empty(t, blocked)
	assert.Equal(t, 1, summary.EligibleForReduction)
	assert.Equal(t, IncreaseFlags{}, eligible[0].Flags)
}

func TestBuildIncreaseFlagsQualifiers(t *testing.T) {
	// A rule 8 decrease and a rule 7 non-add row must not arm the gate.
	flags := BuildIncreaseFlags(
		[]RuleRecommendation{{StoreCode: "A", SPUCode: "X", Recommendation: ""}},
		[]RuleRecommendation{{StoreCode: "A", SPUCode: "X", IsImbalanced: true, QuantityChange: -4}},
		nil,
	)
	assert.Equal(t, IncreaseFlags{}, flags[RowKey{StoreCode: "A", SPUCode: "X"}])

	flags = BuildIncreaseFlags(
		nil,
		[]RuleRecommendation{{StoreCode: "A", SPUCode: "X", IsImbalanced: true, QuantityChange: 4}},
		[]RuleRecommendation{{StoreCode: "A", SPUCode: "Y", Rule9Applied: true}},
	)
	assert.Equal(t, IncreaseFlags{Step8Adjusted: true}, flags[RowKey{StoreCode: "A", SPUCode: "X"}])
	assert.Equal(t, IncreaseFlags{Step9Applied: true}, flags[RowKey{StoreCode: "A", SPUCode: "Y"}])
}
