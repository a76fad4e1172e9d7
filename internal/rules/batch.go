package rules

// EvaluateEligibilities classifies every observation row for one period.
// Rows absent from storeTemps are evaluated with a nil temperature, so a
// missing climate file degrades to UNKNOWN/INELIGIBLE per category rather
// than failing the run.
func EvaluateEligibilities(ref *ReferenceData, obs []StoreProductObservation, storeTemps map[string]*float64, periodLabel string) map[RowKey]EligibilityStatus {
	elig := NewEligibilityEvaluator(ref)
	out := make(map[RowKey]EligibilityStatus, len(obs))
	for _, o := range obs {
		res := elig.Evaluate(storeTemps[o.StoreCode], o.CategoryName, periodLabel)
		out[RowKey{StoreCode: o.StoreCode, SPUCode: o.SPUCode}] = res.Status
	}
	return out
}

// EvaluateAll runs the below-minimum decision tree over a full period of
// observations. Cluster reference signals are derived from the observations
// themselves: the 10th-percentile peer quantity per (cluster, SPU) and the
// median peer sell-through per (cluster, SPU). Only rows that end in
// BELOW_MINIMUM produce a recommendation.
func (r *BelowMinimumRule) EvaluateAll(
	obs []StoreProductObservation,
	eligibilities map[RowKey]EligibilityStatus,
	manualMinimums map[RowKey]float64,
	adjustedByStep8 map[RowKey]bool,
) []RuleRecommendation {
	type clusterSPUKey struct {
		clusterID int
		spuCode   string
	}

	quantities := make(map[clusterSPUKey][]float64)
	sellThroughs := make(map[clusterSPUKey][]float64)
	for _, o := range obs {
		k := clusterSPUKey{clusterID: o.ClusterID, spuCode: o.SPUCode}
		quantities[k] = append(quantities[k], o.Quantity)
		sellThroughs[k] = append(sellThroughs[k], o.SellThroughRate)
	}

	var recs []RuleRecommendation
	for _, o := range obs {
		key := RowKey{StoreCode: o.StoreCode, SPUCode: o.SPUCode}
		csk := clusterSPUKey{clusterID: o.ClusterID, spuCode: o.SPUCode}

		in := BelowMinimumInput{
			StoreCode:         o.StoreCode,
			SPUCode:           o.SPUCode,
			CurrentQuantity:   o.Quantity,
			SubcategoryName:   o.SubcategoryName,
			EligibilityStatus: eligibilities[key],
			AdjustedByStep8:   adjustedByStep8[key],
			RecentSalesUnits:  o.RecentSalesUnits,
			SellThroughRate:   o.SellThroughRate,
		}
		if m, ok := manualMinimums[key]; ok {
			in.ManualPlanMinimum = &m
		}
		if qs := quantities[csk]; len(qs) >= 3 {
			p10 := percentile(qs, 0.10)
			in.ClusterP10Rate = &p10
		}
		if sts := sellThroughs[csk]; len(sts) >= 2 {
			med := median(sts)
			in.ClusterMedianSellThrough = &med
		}

		res := r.Evaluate(in)
		if res.Status != BelowMinimum {
			continue
		}

		unitPrice := 0.0
		if o.RecentSalesUnits > 0 {
			unitPrice = o.SalesAmount / o.RecentSalesUnits
		}
		change := float64(res.RecommendedQuantityChange)
		recs = append(recs, RuleRecommendation{
			StoreCode:          o.StoreCode,
			SPUCode:            o.SPUCode,
			SubcategoryName:    o.SubcategoryName,
			ClusterID:          o.ClusterID,
			Source:             SourceBelowMinimum,
			QuantityChange:     change,
			UnitPrice:          unitPrice,
			InvestmentRequired: change * unitPrice,
			Rule9Applied:       true,
			Rationale:          res.Rationale,
		})
	}
	return recs
}
