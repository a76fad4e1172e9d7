package rules

import (
	"fmt"
	"math"
)

// EligibilityEvaluator classifies whether a product category fits a store's
// climate and the current season phase. It is the input gate shared by the
// rule evaluators.
type EligibilityEvaluator struct {
	ref *ReferenceData
}

// NewEligibilityEvaluator creates an evaluator over the given reference
// tables.
func NewEligibilityEvaluator(ref *ReferenceData) *EligibilityEvaluator {
	return &EligibilityEvaluator{ref: ref}
}

// Evaluate classifies a (store, category, period) as eligible, ineligible
// or unknown. storeTemperature is the store's feels-like temperature; nil
// or NaN means the climate signal is unavailable.
//
// All-season categories are always eligible. When the climate signal is
// missing, a season mismatch is conservatively ineligible and a season
// match is unknown. When both signals are present the season verdict takes
// priority in the reason message.
func (e *EligibilityEvaluator) Evaluate(storeTemperature *float64, categoryName string, periodLabel string) EligibilityResult {
	band := e.ref.BandForCategory(categoryName)
	season := SeasonForPeriod(periodLabel)

	res := EligibilityResult{
		StoreTemperature: storeTemperature,
		ProductBand:      band,
		CurrentSeason:    season,
	}

	if band == BandAllSeason {
		res.Status = Eligible
		res.ClimateMatch = true
		res.SeasonMatch = true
		res.Reason = "all-season category"
		return res
	}

	res.SeasonMatch = e.ref.BandMatchesSeason(band, season)

	if storeTemperature == nil || math.IsNaN(*storeTemperature) {
		if !res.SeasonMatch {
			res.Status = Ineligible
			res.Reason = fmt.Sprintf("season mismatch: %s band out of season in %s", band, season)
			return res
		}
		res.Status = EligibilityUnknown
		res.Reason = "season matches but store climate signal is unavailable"
		return res
	}

	res.ClimateMatch = e.ref.BandMatchesTemperature(band, *storeTemperature)

	switch {
	case res.SeasonMatch && res.ClimateMatch:
		res.Status = Eligible
		res.Reason = "season and climate match"
	case !res.SeasonMatch:
		res.Status = Ineligible
		res.Reason = fmt.Sprintf("season mismatch: %s band out of season in %s", band, season)
	default:
		res.Status = Ineligible
		res.Reason = fmt.Sprintf("climate mismatch: %.1f outside %s band range", *storeTemperature, band)
	}
	return res
}
