package rules

// StoreProductObservation is one (store, SPU) fact row for a period,
// produced by the upstream ETL. It is immutable input to every rule.
type StoreProductObservation struct {
	StoreCode        string
	SPUCode          string
	CategoryName     string
	SubcategoryName  string
	Quantity         float64
	SalesAmount      float64
	RecentSalesUnits float64
	SellThroughRate  float64
	ClusterID        int
}

// EligibilityStatus classifies a product for a store-period.
type EligibilityStatus string

const (
	Eligible   EligibilityStatus = "ELIGIBLE"
	Ineligible EligibilityStatus = "INELIGIBLE"
	// EligibilityUnknown means the season fits but the store's climate
	// signal is missing. Downstream treats it distinctly from Eligible.
	EligibilityUnknown EligibilityStatus = "UNKNOWN"
)

// EligibilityResult is the outcome of the eligibility evaluator for one
// (store, category, period).
type EligibilityResult struct {
	Status           EligibilityStatus
	Reason           string
	ClimateMatch     bool
	SeasonMatch      bool
	StoreTemperature *float64
	ProductBand      TemperatureBand
	CurrentSeason    SeasonPhase
}

// RuleSource identifies which rule produced a recommendation.
type RuleSource int

const (
	SourceMissingCategory   RuleSource = 7
	SourceImbalance         RuleSource = 8
	SourceBelowMinimum      RuleSource = 9
	SourceOvercapacity      RuleSource = 10
	SourceMissedOpportunity RuleSource = 11
	SourcePerformance       RuleSource = 12
)

// RuleRecommendation is one rule's candidate adjustment for a (store, SPU).
// Rows are created once per run and never mutated; only the consolidator
// reads them.
type RuleRecommendation struct {
	StoreCode          string
	SPUCode            string
	SubcategoryName    string
	ClusterID          int
	Source             RuleSource
	QuantityChange     float64
	UnitPrice          float64
	InvestmentRequired float64
	Rationale          string

	// Rule-specific flags carried through to the gate and consolidator.
	Recommendation  string // "ADD" for rule 7 / 11 add candidates
	IsImbalanced    bool   // rule 8
	Rule9Applied    bool   // rule 9
	SuggestionOnly  bool   // rule 11
	OpportunityTier string // rule 12: HIGH / MEDIUM / LOW
}

// ThresholdSource records which fallback level supplied a minimum threshold.
type ThresholdSource string

const (
	ThresholdManual     ThresholdSource = "MANUAL"
	ThresholdClusterP10 ThresholdSource = "CLUSTER_P10"
	ThresholdGlobal     ThresholdSource = "GLOBAL"
)

// MinimumStatus is the terminal state of the below-minimum decision tree.
type MinimumStatus string

const (
	BelowMinimum      MinimumStatus = "BELOW_MINIMUM"
	AboveMinimum      MinimumStatus = "ABOVE_MINIMUM"
	SkippedStep8      MinimumStatus = "SKIPPED_STEP8"
	SkippedIneligible MinimumStatus = "SKIPPED_INELIGIBLE"
	SkippedNoDemand   MinimumStatus = "SKIPPED_NO_DEMAND"
)

// BelowMinimumResult is the outcome of the below-minimum rule for one row.
// RecommendedQuantityChange is never negative.
type BelowMinimumResult struct {
	Status                    MinimumStatus
	MinimumThreshold          float64
	MinimumReferenceSource    ThresholdSource
	RecommendedQuantityChange int
	SellThroughValid          bool
	IsCoreSubcategory         bool
	Rule9Applied              bool
	Rationale                 string
}

// GateEligibility is the reduction gate's classification of a candidate.
type GateEligibility string

const (
	EligibleForReduction   GateEligibility = "ELIGIBLE_FOR_REDUCTION"
	BlockedStep7Increase   GateEligibility = "BLOCKED_STEP7_INCREASE"
	BlockedStep8Increase   GateEligibility = "BLOCKED_STEP8_INCREASE"
	BlockedStep9Increase   GateEligibility = "BLOCKED_STEP9_INCREASE"
	BlockedCoreSubcategory GateEligibility = "BLOCKED_CORE_SUBCATEGORY"
	BlockedIneligible      GateEligibility = "BLOCKED_INELIGIBLE"
)

// ReductionGateResult is the gate decision for one reduction candidate.
// CanReduce is true exactly when Eligibility is EligibleForReduction.
type ReductionGateResult struct {
	Eligibility            GateEligibility
	Reason                 string
	CanReduce              bool
	MaxReductionPercentage float64
}

// RecommendationState tracks a candidate through the gate lifecycle.
type RecommendationState string

const (
	CandidateGenerated RecommendationState = "CANDIDATE_GENERATED"
	Applied            RecommendationState = "APPLIED"
	Suppressed         RecommendationState = "SUPPRESSED"
)

// ConsolidatedRecommendation is the final per-(store, SPU) record after
// merging all rule outputs and applying the reduction gate. Owned by the
// consolidator; downstream readers must not mutate it.
type ConsolidatedRecommendation struct {
	StoreCode                 string
	SPUCode                   string
	SubcategoryName           string
	ClusterID                 int
	RecommendedQuantityChange float64
	RuleSources               []RuleSource
	State                     RecommendationState
	GateReason                string
	Rationale                 string
}

// IncreaseFlags are the per-(store, SPU) booleans derived from the rule
// 7/8/9 outputs that arm the reduction gate. Absence of a key in any
// upstream output means the flag is false, never an error.
type IncreaseFlags struct {
	Step7Recommended bool
	Step8Adjusted    bool
	Step9Applied     bool
}

// GateSummary reports the batch outcome of applying the reduction gate.
// A candidate blocked by more than one step counts once in BlockedTotal
// but in each matching per-step counter.
type GateSummary struct {
	TotalCandidates      int
	EligibleForReduction int
	BlockedTotal         int
	BlockedByStep7       int
	BlockedByStep8       int
	BlockedByStep9       int
	BlockedByCore        int
	BlockedByIneligible  int
}
