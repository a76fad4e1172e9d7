package rules

import "fmt"

// Opportunity tiers emitted by the performance rule.
const (
	TierHigh   = "HIGH"
	TierMedium = "MEDIUM"
	TierLow    = "LOW"
)

// PerformanceRule (step 12) measures each (store, SPU) row's sales gap
// against the cluster's 90th-percentile store for the same SPU and emits a
// tiered opportunity flag. It never changes quantities; its rows carry
// rationale only.
type PerformanceRule struct {
	cfg RuleConfig
}

// NewPerformanceRule creates the rule.
func NewPerformanceRule(cfg RuleConfig) *PerformanceRule {
	return &PerformanceRule{cfg: cfg}
}

// Evaluate emits one zero-change recommendation per flagged row. The gap
// ratio is (p90 - sales) / p90; HIGH and MEDIUM thresholds come from the
// config, smaller positive gaps are LOW and not emitted.
func (r *PerformanceRule) Evaluate(obs []StoreProductObservation) []RuleRecommendation {
	type clusterKey struct {
		cluster int
		spu     string
	}
	groups := make(map[clusterKey][]float64)
	for _, o := range obs {
		k := clusterKey{cluster: o.ClusterID, spu: o.SPUCode}
		groups[k] = append(groups[k], o.SalesAmount)
	}

	var recs []RuleRecommendation
	for _, o := range obs {
		k := clusterKey{cluster: o.ClusterID, spu: o.SPUCode}
		peers := groups[k]
		if len(peers) < 3 {
			continue
		}
		p90 := percentile(peers, 0.9)
		if p90 <= 0 {
			continue
		}
		gap := (p90 - o.SalesAmount) / p90

		var tier string
		switch {
		case gap >= r.cfg.PerformanceHighGap:
			tier = TierHigh
		case gap >= r.cfg.PerformanceMediumGap:
			tier = TierMedium
		default:
			continue
		}

		recs = append(recs, RuleRecommendation{
			StoreCode:       o.StoreCode,
			SPUCode:         o.SPUCode,
			SubcategoryName: o.SubcategoryName,
			ClusterID:       o.ClusterID,
			Source:          SourcePerformance,
			QuantityChange:  0,
			OpportunityTier: tier,
			Rationale: fmt.Sprintf("sales %.0f vs cluster %d P90 %.0f, gap %.0f%% (%s)",
				o.SalesAmount, o.ClusterID, p90, gap*100, tier),
		})
	}
	return recs
}
