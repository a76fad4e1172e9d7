package rules

import (
	"fmt"
	"math"
)

// ImbalanceRule (step 8) flags (store, SPU) rows whose stock quantity is a
// z-score outlier against cluster peers stocking the same SPU, and
// recommends an adjustment back toward the cluster mean.
type ImbalanceRule struct {
	cfg RuleConfig
}

// NewImbalanceRule creates the rule.
func NewImbalanceRule(cfg RuleConfig) *ImbalanceRule {
	return &ImbalanceRule{cfg: cfg}
}

// Evaluate computes per-(cluster, SPU) quantity statistics and emits one
// recommendation per outlier row. A positive change (understocked row)
// arms the reduction gate downstream; a negative change is itself a
// reduction candidate the consolidator will gate.
func (r *ImbalanceRule) Evaluate(obs []StoreProductObservation) []RuleRecommendation {
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
		// Not enough peers for a meaningful distribution.
		if len(peers) < 3 {
			continue
		}
		m := mean(peers)
		sd := stddev(peers)
		if sd == 0 {
			continue
		}

		z := (o.Quantity - m) / sd
		if math.Abs(z) <= r.cfg.ImbalanceZScore {
			continue
		}

		change := m - o.Quantity
		if change > r.cfg.MaxImbalanceAdjustment {
			change = r.cfg.MaxImbalanceAdjustment
		}
		if change < -r.cfg.MaxImbalanceAdjustment {
			change = -r.cfg.MaxImbalanceAdjustment
		}
		change = roundAway(change)
		if change == 0 {
			continue
		}

		direction := "overstocked"
		if z < 0 {
			direction = "understocked"
		}
		recs = append(recs, RuleRecommendation{
			StoreCode:       o.StoreCode,
			SPUCode:         o.SPUCode,
			SubcategoryName: o.SubcategoryName,
			ClusterID:       o.ClusterID,
			Source:          SourceImbalance,
			QuantityChange:  change,
			IsImbalanced:    true,
			Rationale: fmt.Sprintf("%s vs cluster %d peers: z=%.2f, qty %.1f vs mean %.1f",
				direction, o.ClusterID, z, o.Quantity, m),
		})
	}
	return recs
}

// roundAway rounds a quantity change away from zero so a flagged outlier
// always yields at least one unit of movement.
func roundAway(v float64) float64 {
	if v > 0 {
		return math.Ceil(v)
	}
	return math.Floor(v)
}
