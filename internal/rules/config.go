package rules

// RuleConfig holds every tunable threshold used by the rule evaluators,
// the reduction gate and the consolidator. It is passed explicitly into
// each evaluator so two configurations can run side by side; there is no
// package-level default instance.
type RuleConfig struct {
	// Below-minimum rule (step 9).
	GlobalMinimumQuantity    float64 // last-resort minimum threshold
	MinBoostQuantity         float64 // conservative increase floor
	MaxIncreasePercentage    float64 // cap as a fraction of historical baseline
	SellThroughFloor         float64 // absolute sell-through floor
	CapacityIncreaseFraction float64 // fraction of remaining capacity usable
	RequireSellThroughSignal bool    // skip no-demand rows (non-core only)

	// Missing-category rule (step 7).
	MissingPeerRatio float64 // fraction of cluster peers stocking an SPU

	// Imbalance rule (step 8).
	ImbalanceZScore        float64 // |z| beyond which a row is imbalanced
	MaxImbalanceAdjustment float64 // cap on a single imbalance correction

	// Overcapacity rule (step 10).
	OvercapacityFactor float64 // multiple of cluster P90 that flags a row

	// Missed-opportunity rule (step 11).
	OpportunityTopN         int     // peer SPUs ranked by sales to consider
	OpportunitySuggestedQty float64 // suggested add quantity per SPU

	// Performance rule (step 12).
	PerformanceHighGap   float64 // gap ratio vs cluster P90 for HIGH tier
	PerformanceMediumGap float64 // gap ratio for MEDIUM tier

	// Reduction gate.
	RespectPriorIncreases       bool
	ProtectCoreSubcategories    bool
	DefaultMaxReduction         float64 // fraction of current quantity
	CoreSubcategoryMaxReduction float64 // reduced cap for core subcategories
}

// DefaultRuleConfig returns the production configuration.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		GlobalMinimumQuantity:    2,
		MinBoostQuantity:         1,
		MaxIncreasePercentage:    0.2,
		SellThroughFloor:         0.05,
		CapacityIncreaseFraction: 0.1,
		RequireSellThroughSignal: true,

		MissingPeerRatio: 0.5,

		ImbalanceZScore:        2.0,
		MaxImbalanceAdjustment: 10,

		OvercapacityFactor: 1.5,

		OpportunityTopN:         10,
		OpportunitySuggestedQty: 2,

		PerformanceHighGap:   0.5,
		PerformanceMediumGap: 0.25,

		RespectPriorIncreases:       true,
		ProtectCoreSubcategories:    true,
		DefaultMaxReduction:         0.5,
		CoreSubcategoryMaxReduction: 0.2,
	}
}
