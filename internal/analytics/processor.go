package analytics

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ResultLoader imports consolidated output files back into the recommendations
// table. The engine normally writes results straight through the service
// layer; the loader exists for backfills, e.g. re-importing a period from the
// archive bucket after a database restore.
type ResultLoader struct {
	db *sql.DB
}

func NewResultLoader(db *sql.DB) *ResultLoader {
	return &ResultLoader{db: db}
}

// LoadConsolidatedFile replaces one period's recommendations with the rows in
// the given consolidated CSV. The period label is taken from the filename,
// which must follow the consolidated_<period>.csv convention.
func (l *ResultLoader) LoadConsolidatedFile(ctx context.Context, filePath string) (int, error) {
	periodLabel, err := periodFromFilename(filePath)
	if err != nil {
		return 0, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colMap := make(map[string]int)
	for i, col := range header {
		colMap[col] = i
	}
	for _, required := range []string{"store_code", "spu_code", "recommended_quantity_change", "state"} {
		if _, ok := colMap[required]; !ok {
			return 0, fmt.Errorf("consolidated file %s is missing column %q", filePath, required)
		}
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM recommendations WHERE period_label = $1", periodLabel); err != nil {
		return 0, fmt.Errorf("failed to clear period %s: %w", periodLabel, err)
	}

	query := `
		INSERT INTO recommendations (
			period_label, store_code, spu_code, subcategory_name, cluster_id,
			recommended_quantity_change, rule_sources, state, gate_reason,
			rationale, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW()
		)
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	field := func(record []string, name string) string {
		idx, ok := colMap[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	processedCount := 0
	for {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return 0, fmt.Errorf("error reading record: %w", err)
		}

		clusterID, _ := strconv.Atoi(field(record, "cluster_id"))
		quantityChange, err := strconv.ParseFloat(field(record, "recommended_quantity_change"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid quantity change for %s/%s: %w",
				field(record, "store_code"), field(record, "spu_code"), err)
		}

		if _, err := stmt.ExecContext(ctx,
			periodLabel,
			field(record, "store_code"),
			field(record, "spu_code"),
			field(record, "subcategory_name"),
			clusterID,
			quantityChange,
			field(record, "rule_sources"),
			field(record, "state"),
			field(record, "gate_reason"),
			field(record, "rationale"),
		); err != nil {
			return 0, fmt.Errorf("failed to insert record: %w", err)
		}
		processedCount++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("period", periodLabel).
		Int("rows", processedCount).
		Str("file", filePath).
		Msg("consolidated results loaded")
	return processedCount, nil
}

func periodFromFilename(filePath string) (string, error) {
	base := filepath.Base(filePath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if !strings.HasPrefix(name, "consolidated_") {
		return "", fmt.Errorf("filename %s does not match consolidated_<period>.csv", base)
	}
	period := strings.TrimPrefix(name, "consolidated_")
	if period == "" {
		return "", fmt.Errorf("filename %s has no period label", base)
	}
	return period, nil
}
