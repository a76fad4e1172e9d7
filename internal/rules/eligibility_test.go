package rules

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fptr(v float64) *float64 { return &v }

func newEvaluator() *EligibilityEvaluator {
	return NewEligibilityEvaluator(DefaultReference())
}

func TestEvaluateAllSeasonAlwaysEligible(t *testing.T) {
	e := newEvaluator()

	cases := []struct {
		name   string
		temp   *float64
		period string
	}{
		{"winter period cold store", fptr(-5), "202501A"},
		{"summer period hot store", fptr(35), "202507B"},
		{"no temperature", nil, "202501A"},
		{"nan temperature", fptr(math.NaN()), "202506A"},
		{"malformed period", fptr(20), "garbage"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.Evaluate(tc.temp, "直筒裤", tc.period)
			assert.Equal(t, Eligible, res.Status)
			assert.True(t, res.ClimateMatch)
			assert.True(t, res.SeasonMatch)
			assert.Equal(t, BandAllSeason, res.ProductBand)
		})
	}
}

func TestEvaluateDownJacketInSummer(t *testing.T) {
	// Winter-only band in a June period: season mismatch wins even though
	// the store is hot enough to be a climate mismatch too.
	res := newEvaluator().Evaluate(fptr(28.0), "羽绒服", "202506A")

	assert.Equal(t, Ineligible, res.Status)
	assert.False(t, res.SeasonMatch)
	assert.Contains(t, res.Reason, "season mismatch")
	assert.NotContains(t, res.Reason, "climate")
	assert.Equal(t, BandWinter, res.ProductBand)
	assert.Equal(t, PhaseSummer, res.CurrentSeason)
}

func TestEvaluateMissingTemperature(t *testing.T) {
	e := newEvaluator()

	// Season mismatch with no climate signal: conservative ineligible.
	res := e.Evaluate(nil, "羽绒服", "202507A")
	assert.Equal(t, Ineligible, res.Status)

	// Season match with no climate signal: unknown, not eligible.
	res = e.Evaluate(nil, "羽绒服", "202501A")
	assert.Equal(t, EligibilityUnknown, res.Status)
	assert.True(t, res.SeasonMatch)

	// NaN behaves like nil.
	res = e.Evaluate(fptr(math.NaN()), "羽绒服", "202501A")
	assert.Equal(t, EligibilityUnknown, res.Status)
}

func TestEvaluateClimateMismatch(t *testing.T) {
	// Winter season, winter band, but the store is too warm for the band.
	res := newEvaluator().Evaluate(fptr(25.0), "羽绒服", "202501A")

	assert.Equal(t, Ineligible, res.Status)
	assert.True(t, res.SeasonMatch)
	assert.False(t, res.ClimateMatch)
	assert.Contains(t, res.Reason, "climate mismatch")
}

func TestBandBoundariesAreHalfOpen(t *testing.T) {
	ref := DefaultReference()

	// 12 is the winter/spring boundary: it belongs to the spring band.
	assert.False(t, ref.BandMatchesTemperature(BandWinter, 12))
	assert.True(t, ref.BandMatchesTemperature(BandSpringAutumn, 12))
	assert.True(t, ref.BandMatchesTemperature(BandWinter, 11.9))

	// 22 is the spring/summer boundary.
	assert.False(t, ref.BandMatchesTemperature(BandSpringAutumn, 22))
	assert.True(t, ref.BandMatchesTemperature(BandSummer, 22))
}

func TestBandForCategoryLookupPhases(t *testing.T) {
	ref := DefaultReference()

	// Exact match first.
	assert.Equal(t, BandWinter, ref.BandForCategory("羽绒服"))
	assert.Equal(t, BandAllSeason, ref.BandForCategory("直筒裤"))

	// Keyword fallback for unseen names.
	assert.Equal(t, BandWinter, ref.BandForCategory("轻薄羽绒马甲"))
	assert.Equal(t, BandSummer, ref.BandForCategory("印花短袖"))

	// Unknown category defaults to all-season.
	assert.Equal(t, BandAllSeason, ref.BandForCategory("神秘新品类"))
	assert.Equal(t, BandAllSeason, ref.BandForCategory(""))
}

func TestSeasonForPeriod(t *testing.T) {
	assert.Equal(t, PhaseWinter, SeasonForPeriod("202501A"))
	assert.Equal(t, PhaseSpringTransition, SeasonForPeriod("202504B"))
	assert.Equal(t, PhaseSummer, SeasonForPeriod("202506A"))
	assert.Equal(t, PhaseAutumnTransition, SeasonForPeriod("202510B"))

	// Lenient fallback for malformed labels.
	assert.Equal(t, PhaseSpringTransition, SeasonForPeriod(""))
	assert.Equal(t, PhaseSpringTransition, SeasonForPeriod("2025061"))
	assert.Equal(t, PhaseSpringTransition, SeasonForPeriod("202513A"))
	assert.Equal(t, PhaseSpringTransition, SeasonForPeriod("202506C"))
}
