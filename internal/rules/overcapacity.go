package rules

import (
	"fmt"
	"math"
)

// OvercapacityRule (step 10) flags (store, SPU) rows holding far more
// stock than cluster peers and emits reduction candidates. Candidates are
// only candidates: every one must pass the reduction gate before a
// reduction is applied.
type OvercapacityRule struct {
	cfg RuleConfig
}

// NewOvercapacityRule creates the rule.
func NewOvercapacityRule(cfg RuleConfig) *OvercapacityRule {
	return &OvercapacityRule{cfg: cfg}
}

// Evaluate emits a negative-change candidate for every row whose quantity
// exceeds OvercapacityFactor times the cluster P90 for that SPU. The
// proposed change is the excess over the P90, floored to whole units.
func (r *OvercapacityRule) Evaluate(obs []StoreProductObservation) []RuleRecommendation {
	type clusterKey struct {
		cluster int
		spu     string
	}
	groups := make(map[clusterKey][]float64)
	for _, o := range obs {
		k := clusterKey{cluster: o.ClusterID, spu: o.SPUCode}
		groups[k] = append(groups[k], o.Quantity)
	}

	var recs []RuleRecommendation
	for _, o := range obs {
		k := clusterKey{cluster: o.ClusterID, spu: o.SPUCode}
		peers := groups[k]
		if len(peers) < 3 {
			continue
		}
		p90 := percentile(peers, 0.9)
		if p90 <= 0 || o.Quantity <= p90*r.cfg.OvercapacityFactor {
			continue
		}

		excess := math.Floor(o.Quantity - p90)
		if excess < 1 {
			continue
		}
		recs = append(recs, RuleRecommendation{
			StoreCode:       o.StoreCode,
			SPUCode:         o.SPUCode,
			SubcategoryName: o.SubcategoryName,
			ClusterID:       o.ClusterID,
			Source:          SourceOvercapacity,
			QuantityChange:  -excess,
			Rationale: fmt.Sprintf("qty %.1f exceeds %.1fx cluster %d P90 (%.1f)",
				o.Quantity, r.cfg.OvercapacityFactor, o.ClusterID, p90),
		})
	}
	return recs
}
