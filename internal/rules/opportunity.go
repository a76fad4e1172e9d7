package rules

import (
	"fmt"
	"sort"
)

// MissedOpportunityRule (step 11) recommends adding the cluster's
// top-selling SPUs to stores that do not carry them. Its output is
// suggestion-only: it still contributes a positive component at
// consolidation but carries the SuggestionOnly marker for reporting.
type MissedOpportunityRule struct {
	cfg  RuleConfig
	elig *EligibilityEvaluator
}

// NewMissedOpportunityRule creates the rule.
func NewMissedOpportunityRule(cfg RuleConfig, ref *ReferenceData) *MissedOpportunityRule {
	return &MissedOpportunityRule{cfg: cfg, elig: NewEligibilityEvaluator(ref)}
}

// Evaluate ranks each cluster's SPUs by total sales amount and suggests
// the top OpportunityTopN to stores lacking them, skipping ineligible
// store-category combinations.
func (r *MissedOpportunityRule) Evaluate(obs []StoreProductObservation, storeTemps map[string]*float64, periodLabel string) []RuleRecommendation {
	type spuAgg struct {
		spu         string
		category    string
		subcategory string
		sales       float64
	}
	clusterStores := make(map[int]map[string]bool)
	clusterAggs := make(map[int]map[string]*spuAgg)
	stocked := make(map[RowKey]bool, len(obs))

	for _, o := range obs {
		if clusterStores[o.ClusterID] == nil {
			clusterStores[o.ClusterID] = make(map[string]bool)
			clusterAggs[o.ClusterID] = make(map[string]*spuAgg)
		}
		clusterStores[o.ClusterID][o.StoreCode] = true
		stocked[RowKey{StoreCode: o.StoreCode, SPUCode: o.SPUCode}] = true

		agg := clusterAggs[o.ClusterID][o.SPUCode]
		if agg == nil {
			agg = &spuAgg{spu: o.SPUCode, category: o.CategoryName, subcategory: o.SubcategoryName}
			clusterAggs[o.ClusterID][o.SPUCode] = agg
		}
		agg.sales += o.SalesAmount
	}

	var recs []RuleRecommendation
	for clusterID, aggs := range clusterAggs {
		ranked := make([]*spuAgg, 0, len(aggs))
		for _, a := range aggs {
			ranked = append(ranked, a)
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].sales != ranked[j].sales {
				return ranked[i].sales > ranked[j].sales
			}
			return ranked[i].spu < ranked[j].spu
		})
		if len(ranked) > r.cfg.OpportunityTopN {
			ranked = ranked[:r.cfg.OpportunityTopN]
		}

		for rank, agg := range ranked {
			for _, store := range sortedKeys(clusterStores[clusterID]) {
				if stocked[RowKey{StoreCode: store, SPUCode: agg.spu}] {
					continue
				}
				res := r.elig.Evaluate(storeTemps[store], agg.category, periodLabel)
				if res.Status == Ineligible {
					continue
				}
				recs = append(recs, RuleRecommendation{
					StoreCode:       store,
					SPUCode:         agg.spu,
					SubcategoryName: agg.subcategory,
					ClusterID:       clusterID,
					Source:          SourceMissedOpportunity,
					QuantityChange:  r.cfg.OpportunitySuggestedQty,
					Recommendation:  "ADD",
					SuggestionOnly:  true,
					Rationale: fmt.Sprintf("cluster %d top seller #%d (%.0f sales) absent from store",
						clusterID, rank+1, agg.sales),
				})
			}
		}
	}
	return recs
}
