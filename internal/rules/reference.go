package rules

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// TemperatureBand names the climate range a category is designed for.
type TemperatureBand string

const (
	BandWinter       TemperatureBand = "WINTER"
	BandSpringAutumn TemperatureBand = "SPRING_AUTUMN"
	BandSummer       TemperatureBand = "SUMMER"
	BandAllSeason    TemperatureBand = "ALL_SEASON"
)

// SeasonPhase is the half-month period's position in the merchandising year.
type SeasonPhase string

const (
	PhaseWinter           SeasonPhase = "WINTER"
	PhaseSpringTransition SeasonPhase = "SPRING_TRANSITION"
	PhaseSummer           SeasonPhase = "SUMMER"
	PhaseAutumnTransition SeasonPhase = "AUTUMN_TRANSITION"
)

// bandRange is the half-open feels-like interval [Min, Max) a band covers.
type bandRange struct {
	Min float64
	Max float64
}

// ReferenceData bundles the static business lookup tables: category to
// temperature band mapping, season phase tables and the core subcategory
// allowlist. Build one with DefaultReference and pass it into evaluators.
type ReferenceData struct {
	// Exact category name to band. Checked before the keyword fallback.
	ExactBands map[string]TemperatureBand
	// Ordered (keyword, band) fallback pairs; first substring hit wins.
	KeywordBands []KeywordBand
	// Band temperature ranges. BandAllSeason has no entry and matches any.
	BandRanges map[TemperatureBand]bandRange
	// Bands appropriate for each season phase. BandAllSeason is implied.
	SeasonBands map[SeasonPhase][]TemperatureBand
	// Subcategories exempt from eligibility and demand gates.
	CoreSubcategories map[string]bool
}

// KeywordBand is one ordered fallback entry for category lookup.
type KeywordBand struct {
	Keyword string
	Band    TemperatureBand
}

// DefaultReference returns the production lookup tables for the Fast Fish
// assortment.
func DefaultReference() *ReferenceData {
	return &ReferenceData{
		ExactBands: map[string]TemperatureBand{
			"羽绒服":  BandWinter,
			"棉服":   BandWinter,
			"毛呢大衣": BandWinter,
			"厚毛衣":  BandWinter,
			"短袖T恤": BandSummer,
			"连衣裙":  BandSummer,
			"短裤":   BandSummer,
			"凉鞋":   BandSummer,
			"卫衣":   BandSpringAutumn,
			"风衣":   BandSpringAutumn,
			"薄毛衣":  BandSpringAutumn,
			"长袖衬衫": BandSpringAutumn,
			"牛仔裤":  BandAllSeason,
			"直筒裤":  BandAllSeason,
			"打底衫":  BandAllSeason,
			"内衣":   BandAllSeason,
			"袜子":   BandAllSeason,
		},
		KeywordBands: []KeywordBand{
			{"羽绒", BandWinter},
			{"大衣", BandWinter},
			{"棉", BandWinter},
			{"绒", BandWinter},
			{"短袖", BandSummer},
			{"凉", BandSummer},
			{"短裤", BandSummer},
			{"背心", BandSummer},
			{"卫衣", BandSpringAutumn},
			{"风衣", BandSpringAutumn},
			{"长袖", BandSpringAutumn},
			{"夹克", BandSpringAutumn},
		},
		BandRanges: map[TemperatureBand]bandRange{
			BandWinter:       {Min: -40, Max: 12},
			BandSpringAutumn: {Min: 12, Max: 22},
			BandSummer:       {Min: 22, Max: 50},
		},
		SeasonBands: map[SeasonPhase][]TemperatureBand{
			PhaseWinter:           {BandWinter},
			PhaseSpringTransition: {BandSpringAutumn, BandWinter},
			PhaseSummer:           {BandSummer},
			PhaseAutumnTransition: {BandSpringAutumn, BandSummer},
		},
		CoreSubcategories: map[string]bool{
			"直筒裤": true,
			"牛仔裤": true,
			"打底衫": true,
			"T恤":  true,
			"内衣":  true,
			"袜子":  true,
		},
	}
}

// BandForCategory maps a category name to its temperature band using the
// two-phase lookup: exact match first, then the ordered keyword fallback.
// Unknown or empty categories default to BandAllSeason.
func (r *ReferenceData) BandForCategory(category string) TemperatureBand {
	name := strings.TrimSpace(category)
	if name == "" {
		return BandAllSeason
	}
	if band, ok := r.ExactBands[name]; ok {
		return band
	}
	for _, kb := range r.KeywordBands {
		if strings.Contains(name, kb.Keyword) {
			return kb.Band
		}
	}
	return BandAllSeason
}

// IsCoreSubcategory reports whether the subcategory is on the core
// allowlist.
func (r *ReferenceData) IsCoreSubcategory(subcategory string) bool {
	return r.CoreSubcategories[strings.TrimSpace(subcategory)]
}

// BandMatchesTemperature reports whether a feels-like temperature falls in
// the band's half-open [min, max) range. BandAllSeason matches everything.
func (r *ReferenceData) BandMatchesTemperature(band TemperatureBand, temp float64) bool {
	if band == BandAllSeason {
		return true
	}
	rg, ok := r.BandRanges[band]
	if !ok {
		return false
	}
	return temp >= rg.Min && temp < rg.Max
}

// BandMatchesSeason reports whether the band is appropriate for the season
// phase. BandAllSeason is appropriate for every phase.
func (r *ReferenceData) BandMatchesSeason(band TemperatureBand, phase SeasonPhase) bool {
	if band == BandAllSeason {
		return true
	}
	for _, b := range r.SeasonBands[phase] {
		if b == band {
			return true
		}
	}
	return false
}

// SeasonForPeriod maps a period label (YYYYMMA / YYYYMMB) to its season
// phase. Malformed labels fall back to the spring transition phase with a
// warning rather than failing the run; a half-month of recommendations is
// worth more than a hard stop on a bad label.
func SeasonForPeriod(periodLabel string) SeasonPhase {
	phase, ok := seasonForPeriod(periodLabel)
	if !ok {
		log.Warn().Str("period", periodLabel).Msg("malformed period label, defaulting season to spring transition")
	}
	return phase
}

func seasonForPeriod(periodLabel string) (SeasonPhase, bool) {
	label := strings.TrimSpace(periodLabel)
	if len(label) != 7 {
		return PhaseSpringTransition, false
	}
	half := label[6]
	if half != 'A' && half != 'B' {
		return PhaseSpringTransition, false
	}
	t, err := time.Parse("200601", label[:6])
	if err != nil {
		return PhaseSpringTransition, false
	}
	switch t.Month() {
	case time.December, time.January, time.February:
		return PhaseWinter, true
	case time.March, time.April, time.May:
		return PhaseSpringTransition, true
	case time.June, time.July, time.August:
		return PhaseSummer, true
	default:
		return PhaseAutumnTransition, true
	}
}
