package rules

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// RowKey identifies one (store, SPU) row across rule outputs.
type RowKey struct {
	StoreCode string
	SPUCode   string
}

// GatedCandidate is one reduction candidate with its gate verdict and the
// increase flags that produced it.
type GatedCandidate struct {
	Candidate RuleRecommendation
	Flags     IncreaseFlags
	Result    ReductionGateResult
}

// ReductionGate enforces the cross-cutting never-decrease-after-increase
// invariant plus the core-subcategory and eligibility protections.
type ReductionGate struct {
	cfg RuleConfig
	ref *ReferenceData
}

// NewReductionGate creates a gate with explicit config and reference
// tables.
func NewReductionGate(cfg RuleConfig, ref *ReferenceData) *ReductionGate {
	return &ReductionGate{cfg: cfg, ref: ref}
}

// Check decides whether one reduction candidate may proceed. Precedence is
// strict and the prior-increase checks come before everything else: an SPU
// increased by rule 7, 8 or 9 is blocked unconditionally, regardless of
// core status or eligibility.
func (g *ReductionGate) Check(subcategoryName string, eligibility EligibilityStatus, flags IncreaseFlags) ReductionGateResult {
	if g.cfg.RespectPriorIncreases {
		switch {
		case flags.Step7Recommended:
			return blockedResult(BlockedStep7Increase, "missing-category rule recommended an add for this SPU")
		case flags.Step8Adjusted:
			return blockedResult(BlockedStep8Increase, "imbalance rule increased this SPU")
		case flags.Step9Applied:
			return blockedResult(BlockedStep9Increase, "below-minimum rule increased this SPU")
		}
	}

	if eligibility == Ineligible {
		return blockedResult(BlockedIneligible, "product ineligible for store climate/season")
	}

	if g.cfg.ProtectCoreSubcategories && g.ref.IsCoreSubcategory(subcategoryName) {
		if g.cfg.CoreSubcategoryMaxReduction <= 0 {
			return blockedResult(BlockedCoreSubcategory, "core subcategory protected from reduction")
		}
		return ReductionGateResult{
			Eligibility:            EligibleForReduction,
			Reason:                 fmt.Sprintf("core subcategory, reduction capped at %.0f%%", g.cfg.CoreSubcategoryMaxReduction*100),
			CanReduce:              true,
			MaxReductionPercentage: g.cfg.CoreSubcategoryMaxReduction,
		}
	}

	return ReductionGateResult{
		Eligibility:            EligibleForReduction,
		Reason:                 "no prior increase and no protection applies",
		CanReduce:              true,
		MaxReductionPercentage: g.cfg.DefaultMaxReduction,
	}
}

func blockedResult(e GateEligibility, reason string) ReductionGateResult {
	return ReductionGateResult{Eligibility: e, Reason: reason, CanReduce: false}
}

// Apply gates a batch of overcapacity candidates against the rule 7/8/9
// outputs. Flags are derived by key lookup with left-join semantics: a
// (store, SPU) absent from an upstream output simply has that flag false.
// eligibilities may be nil or sparse; absent keys are treated as unknown,
// which does not block.
//
// The summary counts each blocked candidate once in BlockedTotal but in
// every per-step counter it matches.
func (g *ReductionGate) Apply(candidates []RuleRecommendation, step7, step8, step9 []RuleRecommendation, eligibilities map[RowKey]EligibilityStatus) (eligible, blocked []GatedCandidate, summary GateSummary) {
	flagIndex := BuildIncreaseFlags(step7, step8, step9)

	summary.TotalCandidates = len(candidates)

	for _, cand := range candidates {
		key := RowKey{StoreCode: cand.StoreCode, SPUCode: cand.SPUCode}
		flags := flagIndex[key]

		status := EligibilityUnknown
		if eligibilities != nil {
			if s, ok := eligibilities[key]; ok {
				status = s
			}
		}

		result := g.Check(cand.SubcategoryName, status, flags)
		gated := GatedCandidate{Candidate: cand, Flags: flags, Result: result}

		if result.CanReduce {
			eligible = append(eligible, gated)
			summary.EligibleForReduction++
			continue
		}

		blocked = append(blocked, gated)
		summary.BlockedTotal++
		if flags.Step7Recommended {
			summary.BlockedByStep7++
		}
		if flags.Step8Adjusted {
			summary.BlockedByStep8++
		}
		if flags.Step9Applied {
			summary.BlockedByStep9++
		}
		switch result.Eligibility {
		case BlockedCoreSubcategory:
			summary.BlockedByCore++
		case BlockedIneligible:
			summary.BlockedByIneligible++
		}
	}

	return eligible, blocked, summary
}

// BuildIncreaseFlags derives the per-key increase flags from the rule
// 7/8/9 outputs. Duplicate keys inside one rule's output are a data
// quality problem: they are OR-merged and surfaced as a warning rather
// than silently double-counted.
func BuildIncreaseFlags(step7, step8, step9 []RuleRecommendation) map[RowKey]IncreaseFlags {
	flags := make(map[RowKey]IncreaseFlags)

	merge := func(recs []RuleRecommendation, source RuleSource, qualifies func(RuleRecommendation) bool, set func(*IncreaseFlags)) {
		seen := make(map[RowKey]bool, len(recs))
		for _, rec := range recs {
			if !qualifies(rec) {
				continue
			}
			key := RowKey{StoreCode: rec.StoreCode, SPUCode: rec.SPUCode}
			if seen[key] {
				log.Warn().
					Str("store", rec.StoreCode).
					Str("spu", rec.SPUCode).
					Int("rule", int(source)).
					Msg("duplicate key in rule output, flag merged")
			}
			seen[key] = true
			f := flags[key]
			set(&f)
			flags[key] = f
		}
	}

	merge(step7, SourceMissingCategory,
		func(r RuleRecommendation) bool { return r.Recommendation == "ADD" },
		func(f *IncreaseFlags) { f.Step7Recommended = true })
	merge(step8, SourceImbalance,
		func(r RuleRecommendation) bool { return r.IsImbalanced && r.QuantityChange > 0 },
		func(f *IncreaseFlags) { f.Step8Adjusted = true })
	merge(step9, SourceBelowMinimum,
		func(r RuleRecommendation) bool { return r.Rule9Applied },
		func(f *IncreaseFlags) { f.Step9Applied = true })

	return flags
}
