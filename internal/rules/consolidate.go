package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Consolidator merges the rule 7-12 outputs into one recommendation per
// (store, SPU), applying the reduction gate to every negative component.
// Positive components are never gated; their presence is exactly what arms
// the gate against reductions of the same row.
type Consolidator struct {
	cfg  RuleConfig
	gate *ReductionGate
}

// NewConsolidator creates a consolidator with explicit config and
// reference tables.
func NewConsolidator(cfg RuleConfig, ref *ReferenceData) *Consolidator {
	return &Consolidator{cfg: cfg, gate: NewReductionGate(cfg, ref)}
}

// RuleOutputs holds the per-rule recommendation sets feeding consolidation.
// Any slice may be nil or empty: a rule that produced nothing for the
// period contributes zero recommendations, never an error.
type RuleOutputs struct {
	Missing      []RuleRecommendation // rule 7
	Imbalance    []RuleRecommendation // rule 8
	BelowMinimum []RuleRecommendation // rule 9
	Overcapacity []RuleRecommendation // rule 10
	Opportunity  []RuleRecommendation // rule 11
	Performance  []RuleRecommendation // rule 12
}

// Consolidate merges all rule outputs into final recommendations.
// observations supplies current quantities for reduction caps and
// eligibilities the per-row status for the gate; both use left-join
// semantics (absent key means no cap basis / unknown status).
//
// It returns an error only for an unresolvable cluster id conflict
// between rules for the same (store, SPU); everything else degrades to a
// logged warning.
func (c *Consolidator) Consolidate(outputs RuleOutputs, observations map[RowKey]StoreProductObservation, eligibilities map[RowKey]EligibilityStatus) ([]ConsolidatedRecommendation, error) {
	flags := BuildIncreaseFlags(outputs.Missing, outputs.Imbalance, outputs.BelowMinimum)

	grouped := make(map[RowKey][]RuleRecommendation)
	for _, set := range [][]RuleRecommendation{
		outputs.Missing, outputs.Imbalance, outputs.BelowMinimum,
		outputs.Overcapacity, outputs.Opportunity, outputs.Performance,
	} {
		for _, rec := range dedupeByRule(set) {
			key := RowKey{StoreCode: rec.StoreCode, SPUCode: rec.SPUCode}
			grouped[key] = append(grouped[key], rec)
		}
	}

	keys := make([]RowKey, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].StoreCode != keys[j].StoreCode {
			return keys[i].StoreCode < keys[j].StoreCode
		}
		return keys[i].SPUCode < keys[j].SPUCode
	})

	results := make([]ConsolidatedRecommendation, 0, len(keys))
	for _, key := range keys {
		recs := grouped[key]

		clusterID, err := resolveClusterID(key, recs)
		if err != nil {
			return nil, err
		}

		status := EligibilityUnknown
		if s, ok := eligibilities[key]; ok {
			status = s
		}

		out := ConsolidatedRecommendation{
			StoreCode:       key.StoreCode,
			SPUCode:         key.SPUCode,
			SubcategoryName: firstSubcategory(recs),
			ClusterID:       clusterID,
		}

		net := 0.0
		suppressedReduction := false
		var rationales []string
		for _, rec := range recs {
			out.RuleSources = append(out.RuleSources, rec.Source)
			if rec.Rationale != "" {
				rationales = append(rationales, fmt.Sprintf("step%d: %s", rec.Source, rec.Rationale))
			}

			if rec.QuantityChange >= 0 {
				net += rec.QuantityChange
				continue
			}

			// Negative component: gate it, then cap it.
			verdict := c.gate.Check(rec.SubcategoryName, status, flags[key])
			if !verdict.CanReduce {
				suppressedReduction = true
				out.GateReason = verdict.Reason
				rationales = append(rationales, fmt.Sprintf("step%d reduction suppressed: %s", rec.Source, verdict.Reason))
				continue
			}
			net += c.capReduction(rec.QuantityChange, verdict, observations[key])
			if out.GateReason == "" {
				out.GateReason = verdict.Reason
			}
		}

		out.RecommendedQuantityChange = net
		out.Rationale = strings.Join(rationales, "; ")
		if suppressedReduction && net == 0 {
			out.State = Suppressed
		} else {
			out.State = Applied
		}
		results = append(results, out)
	}

	return results, nil
}

// capReduction limits a gated reduction to the verdict's maximum fraction
// of the row's current quantity. With no observation for the row there is
// no cap basis and the proposed change stands.
func (c *Consolidator) capReduction(change float64, verdict ReductionGateResult, obs StoreProductObservation) float64 {
	if verdict.MaxReductionPercentage <= 0 || obs.Quantity <= 0 {
		return change
	}
	cap := math.Floor(obs.Quantity * verdict.MaxReductionPercentage)
	if -change > cap {
		return -cap
	}
	return change
}

// dedupeByRule drops duplicate (store, SPU) rows within one rule's output,
// keeping the first and warning. Unresolved duplication would otherwise be
// summed twice at consolidation.
func dedupeByRule(recs []RuleRecommendation) []RuleRecommendation {
	if len(recs) == 0 {
		return recs
	}
	seen := make(map[RowKey]bool, len(recs))
	out := recs[:0:0]
	for _, rec := range recs {
		key := RowKey{StoreCode: rec.StoreCode, SPUCode: rec.SPUCode}
		if seen[key] {
			log.Warn().
				Str("store", rec.StoreCode).
				Str("spu", rec.SPUCode).
				Int("rule", int(rec.Source)).
				Msg("duplicate key in rule output, keeping first row")
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	return out
}

// resolveClusterID enforces exact cluster agreement across the rules that
// reported the row. A conflict means the upstream join keys are broken,
// which cannot be safely clamped.
func resolveClusterID(key RowKey, recs []RuleRecommendation) (int, error) {
	clusterID := recs[0].ClusterID
	for _, rec := range recs[1:] {
		if rec.ClusterID != clusterID {
			return 0, fmt.Errorf("cluster id conflict for store %s spu %s: %d vs %d (rule %d)",
				key.StoreCode, key.SPUCode, clusterID, rec.ClusterID, rec.Source)
		}
	}
	return clusterID, nil
}

func firstSubcategory(recs []RuleRecommendation) string {
	for _, rec := range recs {
		if rec.SubcategoryName != "" {
			return rec.SubcategoryName
		}
	}
	return ""
}
