package rules

import (
	"fmt"
	"math"
	"sort"
)

// MissingCategoryRule (step 7) finds SPUs widely stocked by a store's
// cluster peers but absent from the store and recommends adding them.
type MissingCategoryRule struct {
	cfg  RuleConfig
	elig *EligibilityEvaluator
}

// NewMissingCategoryRule creates the rule.
func NewMissingCategoryRule(cfg RuleConfig, ref *ReferenceData) *MissingCategoryRule {
	return &MissingCategoryRule{cfg: cfg, elig: NewEligibilityEvaluator(ref)}
}

// clusterSPU aggregates one SPU's presence across a cluster.
type clusterSPU struct {
	category    string
	subcategory string
	stores      map[string]bool
	quantities  []float64
	unitPrice   float64
}

// Evaluate scans all observations for one period and emits ADD
// recommendations for (store, SPU) pairs where at least MissingPeerRatio
// of the cluster's stores stock the SPU and the store does not.
// Ineligible store-category combinations are skipped; unknown eligibility
// passes through (the add is conservative either way, it is sized from the
// peer median).
func (r *MissingCategoryRule) Evaluate(obs []StoreProductObservation, storeTemps map[string]*float64, periodLabel string) []RuleRecommendation {
	clusterStores := make(map[int]map[string]bool)
	clusterSPUs := make(map[int]map[string]*clusterSPU)
	stocked := make(map[RowKey]bool, len(obs))

	for _, o := range obs {
		if clusterStores[o.ClusterID] == nil {
			clusterStores[o.ClusterID] = make(map[string]bool)
			clusterSPUs[o.ClusterID] = make(map[string]*clusterSPU)
		}
		clusterStores[o.ClusterID][o.StoreCode] = true
		stocked[RowKey{StoreCode: o.StoreCode, SPUCode: o.SPUCode}] = true

		cs := clusterSPUs[o.ClusterID][o.SPUCode]
		if cs == nil {
			cs = &clusterSPU{
				category:    o.CategoryName,
				subcategory: o.SubcategoryName,
				stores:      make(map[string]bool),
			}
			clusterSPUs[o.ClusterID][o.SPUCode] = cs
		}
		cs.stores[o.StoreCode] = true
		cs.quantities = append(cs.quantities, o.Quantity)
		if o.RecentSalesUnits > 0 && cs.unitPrice == 0 {
			cs.unitPrice = o.SalesAmount / o.RecentSalesUnits
		}
	}

	var recs []RuleRecommendation
	for clusterID, spus := range clusterSPUs {
		stores := sortedKeys(clusterStores[clusterID])
		total := len(stores)
		if total < 2 {
			continue
		}

		for _, spuCode := range sortedSPUKeys(spus) {
			cs := spus[spuCode]
			ratio := float64(len(cs.stores)) / float64(total)
			if ratio < r.cfg.MissingPeerRatio {
				continue
			}
			addQty := math.Ceil(median(cs.quantities))
			if addQty < 1 {
				addQty = 1
			}

			for _, store := range stores {
				if stocked[RowKey{StoreCode: store, SPUCode: spuCode}] {
					continue
				}
				res := r.elig.Evaluate(storeTemps[store], cs.category, periodLabel)
				if res.Status == Ineligible {
					continue
				}
				recs = append(recs, RuleRecommendation{
					StoreCode:          store,
					SPUCode:            spuCode,
					SubcategoryName:    cs.subcategory,
					ClusterID:          clusterID,
					Source:             SourceMissingCategory,
					QuantityChange:     addQty,
					UnitPrice:          cs.unitPrice,
					InvestmentRequired: addQty * cs.unitPrice,
					Recommendation:     "ADD",
					Rationale: fmt.Sprintf("%.0f%% of cluster %d peers stock this SPU, store does not",
						ratio*100, clusterID),
				})
			}
		}
	}
	return recs
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSPUKeys(m map[string]*clusterSPU) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
