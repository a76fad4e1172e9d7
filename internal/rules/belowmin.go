package rules

import (
	"fmt"
	"math"
)

// BelowMinimumInput carries everything the below-minimum decision tree
// needs for one (store, SPU) row. Optional reference values are pointers;
// nil means the signal is unavailable.
type BelowMinimumInput struct {
	StoreCode       string
	SPUCode         string
	CurrentQuantity float64
	SubcategoryName string

	EligibilityStatus EligibilityStatus
	AdjustedByStep8   bool

	ManualPlanMinimum *float64
	ClusterP10Rate    *float64

	RecentSalesUnits         float64
	SellThroughRate          float64
	ClusterMedianSellThrough *float64

	HistoricalBaseline *float64
	CasePackSize       *float64
	RemainingCapacity  *float64
}

// BelowMinimumRule evaluates the step 9 decision tree: eligibility skip,
// already-adjusted skip, sell-through validation and the conservative
// increase calculation.
type BelowMinimumRule struct {
	cfg RuleConfig
	ref *ReferenceData
}

// NewBelowMinimumRule creates the rule with explicit config and reference
// tables.
func NewBelowMinimumRule(cfg RuleConfig, ref *ReferenceData) *BelowMinimumRule {
	return &BelowMinimumRule{cfg: cfg, ref: ref}
}

// Evaluate runs the decision tree in strict order; the first matching step
// terminates it. Core subcategories bypass the ineligibility skip and the
// no-demand skip but still obey the step 8 already-adjusted skip. The
// recommended change is never negative.
func (r *BelowMinimumRule) Evaluate(in BelowMinimumInput) BelowMinimumResult {
	res := BelowMinimumResult{
		IsCoreSubcategory: r.ref.IsCoreSubcategory(in.SubcategoryName),
	}

	res.MinimumThreshold, res.MinimumReferenceSource = r.resolveThreshold(in)

	if in.EligibilityStatus == Ineligible && !res.IsCoreSubcategory {
		res.Status = SkippedIneligible
		res.Rationale = "product ineligible for store climate/season"
		return res
	}

	if in.AdjustedByStep8 {
		res.Status = SkippedStep8
		res.Rationale = "quantity already adjusted by imbalance rule"
		return res
	}

	res.SellThroughValid = r.sellThroughValid(in)

	if !res.SellThroughValid && r.cfg.RequireSellThroughSignal && !res.IsCoreSubcategory {
		res.Status = SkippedNoDemand
		res.Rationale = "no demand signal: no recent sales and sell-through below floor"
		return res
	}

	if in.CurrentQuantity >= res.MinimumThreshold {
		res.Status = AboveMinimum
		res.Rationale = fmt.Sprintf("quantity %.1f meets minimum %.1f (%s)",
			in.CurrentQuantity, res.MinimumThreshold, res.MinimumReferenceSource)
		return res
	}

	increase := r.ConservativeIncrease(in.CurrentQuantity, res.MinimumThreshold,
		in.CasePackSize, in.RemainingCapacity, in.HistoricalBaseline)

	res.Status = BelowMinimum
	res.Rule9Applied = true
	res.RecommendedQuantityChange = increase
	res.Rationale = fmt.Sprintf("quantity %.1f below minimum %.1f (%s), conservative increase %d",
		in.CurrentQuantity, res.MinimumThreshold, res.MinimumReferenceSource, increase)
	return res
}

// resolveThreshold applies the three-level fallback: manual plan value,
// cluster 10th percentile, configured global minimum.
func (r *BelowMinimumRule) resolveThreshold(in BelowMinimumInput) (float64, ThresholdSource) {
	if in.ManualPlanMinimum != nil && *in.ManualPlanMinimum > 0 {
		return *in.ManualPlanMinimum, ThresholdManual
	}
	if in.ClusterP10Rate != nil && *in.ClusterP10Rate > 0 {
		return *in.ClusterP10Rate, ThresholdClusterP10
	}
	return r.cfg.GlobalMinimumQuantity, ThresholdGlobal
}

// sellThroughValid reports whether the row carries a usable demand signal:
// either recent sales or a sell-through rate clearing the floor. The floor
// is half the cluster median when a median is known, never below the
// configured absolute floor.
func (r *BelowMinimumRule) sellThroughValid(in BelowMinimumInput) bool {
	if in.RecentSalesUnits > 0 {
		return true
	}
	if in.ClusterMedianSellThrough != nil {
		floor := math.Max(*in.ClusterMedianSellThrough*0.5, r.cfg.SellThroughFloor)
		return in.SellThroughRate >= floor
	}
	return in.SellThroughRate > r.cfg.SellThroughFloor
}

// ConservativeIncrease computes the step 9 increase: the minimum of all
// positive candidate values, ceiled to an integer and floored at one unit.
// Candidates are the gap to the minimum, the configured boost floor, the
// case-pack size, a fraction of remaining capacity and a fraction of the
// historical baseline. The business requirement is to never recommend more
// than the most restrictive applicable constraint.
func (r *BelowMinimumRule) ConservativeIncrease(currentQuantity, minimumThreshold float64, casePackSize, remainingCapacity, historicalBaseline *float64) int {
	candidates := make([]float64, 0, 5)

	if gap := minimumThreshold - currentQuantity; gap > 0 {
		candidates = append(candidates, gap)
	}
	if r.cfg.MinBoostQuantity > 0 {
		candidates = append(candidates, r.cfg.MinBoostQuantity)
	}
	if casePackSize != nil && *casePackSize > 0 {
		candidates = append(candidates, *casePackSize)
	}
	if remainingCapacity != nil && *remainingCapacity > 0 {
		candidates = append(candidates, *remainingCapacity*r.cfg.CapacityIncreaseFraction)
	}
	if historicalBaseline != nil && *historicalBaseline > 0 {
		candidates = append(candidates, *historicalBaseline*r.cfg.MaxIncreasePercentage)
	}

	best := 0.0
	for _, c := range candidates {
		if c <= 0 {
			continue
		}
		if best == 0 || c < best {
			best = c
		}
	}
	if best <= 0 {
		best = r.cfg.MinBoostQuantity
	}

	increase := int(math.Ceil(best))
	if increase < 1 {
		increase = 1
	}
	return increase
}
