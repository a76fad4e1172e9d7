package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fastfish/assortment-engine/internal/rules"
)

// LoadRunInput assembles the full input bundle for one period from the
// configured input directory. The observation file is required; cluster,
// climate and manual-minimum files degrade to warnings when missing.
func LoadRunInput(cfg Config, periodLabel string, ref *rules.ReferenceData) (*RunInput, error) {
	obsPath := filepath.Join(cfg.InputDir, fmt.Sprintf("observations_%s.csv", periodLabel))
	obs, err := loadObservations(obsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("no observations found for period %s in %s", periodLabel, obsPath)
	}

	clusters := loadClusters(filepath.Join(cfg.InputDir, fmt.Sprintf("clusters_%s.csv", periodLabel)))
	for i := range obs {
		if id, ok := clusters[obs[i].StoreCode]; ok {
			obs[i].ClusterID = id
		}
	}

	in := &RunInput{
		PeriodLabel:    periodLabel,
		Observations:   obs,
		StoreTemps:     loadClimate(filepath.Join(cfg.InputDir, fmt.Sprintf("climate_%s.csv", periodLabel))),
		ManualMinimums: loadManualMinimums(filepath.Join(cfg.InputDir, "manual_minimums.csv")),
	}
	in.Eligibilities = rules.EvaluateEligibilities(ref, obs, in.StoreTemps, periodLabel)
	return in, nil
}

// loadObservations reads the per-period fact file. Header matching is
// tolerant of spacing, case and separator variants.
func loadObservations(path string) ([]rules.StoreProductObservation, error) {
	rows, err := readCSVRows(path)
	if err != nil {
		return nil, err
	}

	var obs []rules.StoreProductObservation
	for _, row := range rows {
		o := rules.StoreProductObservation{
			StoreCode:        row.str("store_code", "store"),
			SPUCode:          row.str("spu_code", "spu"),
			CategoryName:     row.str("category_name", "category"),
			SubcategoryName:  row.str("subcategory_name", "subcategory"),
			Quantity:         row.float("quantity", "qty"),
			SalesAmount:      row.float("sales_amount", "sales"),
			RecentSalesUnits: row.float("recent_sales_units", "recent sales"),
			SellThroughRate:  row.float("sell_through_rate", "sell through"),
		}
		if o.StoreCode == "" || o.SPUCode == "" {
			continue
		}
		obs = append(obs, o)
	}
	return obs, nil
}

// loadClusters maps store codes to cluster IDs. A missing file leaves every
// store in cluster 0.
func loadClusters(path string) map[string]int {
	rows, err := readCSVRows(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("cluster file unavailable, using cluster 0 for all stores")
		return map[string]int{}
	}

	clusters := make(map[string]int, len(rows))
	for _, row := range rows {
		store := row.str("store_code", "store")
		if store == "" {
			continue
		}
		clusters[store] = int(row.float("cluster_id", "cluster"))
	}
	return clusters
}

// loadClimate maps store codes to feels-like temperatures. Stores without a
// parseable reading are omitted, which downstream treats as an unavailable
// climate signal.
func loadClimate(path string) map[string]*float64 {
	rows, err := readCSVRows(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("climate file unavailable, eligibility will run without temperatures")
		return map[string]*float64{}
	}

	temps := make(map[string]*float64, len(rows))
	for _, row := range rows {
		store := row.str("store_code", "store")
		if store == "" {
			continue
		}
		raw := row.str("feels_like_temp", "feels like temp", "temperature")
		if raw == "" {
			continue
		}
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Warn().Str("store", store).Str("value", raw).Msg("unparseable temperature, skipping store")
			continue
		}
		temps[store] = &t
	}
	return temps
}

// loadManualMinimums reads the optional merchandising plan overrides.
func loadManualMinimums(path string) map[rules.RowKey]float64 {
	rows, err := readCSVRows(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("manual minimums unavailable")
		}
		return map[rules.RowKey]float64{}
	}

	minimums := make(map[rules.RowKey]float64, len(rows))
	for _, row := range rows {
		store := row.str("store_code", "store")
		spu := row.str("spu_code", "spu")
		if store == "" || spu == "" {
			continue
		}
		minimums[rules.RowKey{StoreCode: store, SPUCode: spu}] = row.float("minimum", "min quantity")
	}
	return minimums
}

// csvRow gives named access to one record through its header.
type csvRow struct {
	index  map[string]int
	record []string
}

func (r csvRow) str(names ...string) string {
	for _, name := range names {
		if i, ok := r.index[normalizeColumnName(name)]; ok && i < len(r.record) {
			return strings.TrimSpace(r.record[i])
		}
	}
	return ""
}

func (r csvRow) float(names ...string) float64 {
	v := r.str(names...)
	if v == "" {
		return 0
	}
	v = strings.ReplaceAll(v, ",", "")
	f, _ := strconv.ParseFloat(v, 64)
	return f
}

// readCSVRows reads a whole CSV file into header-indexed rows.
func readCSVRows(path string) ([]csvRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normalizeColumnName(h)] = i
	}

	var rows []csvRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, csvRow{index: index, record: record})
	}
	return rows, nil
}

var columnNameSanitizer = strings.NewReplacer(" ", "", "_", "", ".", "", "-", "", "/", "")

func normalizeColumnName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return columnNameSanitizer.Replace(name)
}
