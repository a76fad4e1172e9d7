package domain

import "time"

// Recommendation is one consolidated per-(store, SPU) row as persisted for
// serving. It mirrors the engine's consolidated output.
type Recommendation struct {
	ID                        int64     `db:"id" json:"id"`
	PeriodLabel               string    `db:"period_label" json:"period_label"`
	StoreCode                 string    `db:"store_code" json:"store_code"`
	SPUCode                   string    `db:"spu_code" json:"spu_code"`
	SubcategoryName           string    `db:"subcategory_name" json:"subcategory_name"`
	ClusterID                 int       `db:"cluster_id" json:"cluster_id"`
	RecommendedQuantityChange float64   `db:"recommended_quantity_change" json:"recommended_quantity_change"`
	RuleSources               string    `db:"rule_sources" json:"rule_sources"`
	State                     string    `db:"state" json:"state"`
	GateReason                string    `db:"gate_reason" json:"gate_reason"`
	Rationale                 string    `db:"rationale" json:"rationale"`
	CreatedAt                 time.Time `db:"created_at" json:"created_at"`
}

// RecommendationFilter narrows recommendation queries.
type RecommendationFilter struct {
	PeriodLabel string
	StoreCodes  []string
	SPUCodes    []string
	States      []string
	Page        int
	PageSize    int
}

// StateCount is one state's row count for a period.
type StateCount struct {
	State string `db:"state" json:"state"`
	Count int    `db:"count" json:"count"`
}

// RuleCount is one contributing rule's row count for a period.
type RuleCount struct {
	Rule  string `db:"rule" json:"rule"`
	Count int    `db:"count" json:"count"`
}

// DirectionCount splits applied changes by sign.
type DirectionCount struct {
	Increases int `json:"increases"`
	Decreases int `json:"decreases"`
	Unchanged int `json:"unchanged"`
}

// RecommendationSummary is the per-period dashboard aggregate.
type RecommendationSummary struct {
	PeriodLabel    string         `json:"period_label"`
	TotalRows      int            `json:"total_rows"`
	ByState        []StateCount   `json:"by_state"`
	ByRule         []RuleCount    `json:"by_rule"`
	Direction      DirectionCount `json:"direction"`
	NetUnitsChange float64        `json:"net_units_change"`
}
