package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/fastfish/assortment-engine/internal/domain"
	"github.com/fastfish/assortment-engine/internal/repository/postgres"
	"github.com/fastfish/assortment-engine/internal/rules"
)

type RecommendationRepository interface {
	ReplacePeriod(ctx context.Context, periodLabel string, recs []rules.ConsolidatedRecommendation) error
	GetRecommendations(ctx context.Context, filter domain.RecommendationFilter) ([]domain.Recommendation, int, error)
	GetSummary(ctx context.Context, periodLabel string) (*domain.RecommendationSummary, error)
	GetAvailablePeriods(ctx context.Context, limit int) ([]string, error)
}

type recommendationRepository struct {
	db *postgres.DB
}

func NewRecommendationRepository(db *postgres.DB) RecommendationRepository {
	return &recommendationRepository{db: db}
}

// ReplacePeriod swaps a period's rows atomically: a re-run replaces the
// previous consolidation instead of appending to it.
func (r *recommendationRepository) ReplacePeriod(ctx context.Context, periodLabel string, recs []rules.ConsolidatedRecommendation) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM recommendations WHERE period_label = $1`, periodLabel); err != nil {
			return fmt.Errorf("error clearing period %s: %w", periodLabel, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO recommendations (
				period_label, store_code, spu_code, subcategory_name, cluster_id,
				recommended_quantity_change, rule_sources, state, gate_reason, rationale
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`)
		if err != nil {
			return fmt.Errorf("error preparing insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range recs {
			sources := make([]string, 0, len(rec.RuleSources))
			for _, s := range rec.RuleSources {
				sources = append(sources, strconv.Itoa(int(s)))
			}
			if _, err := stmt.ExecContext(ctx,
				periodLabel, rec.StoreCode, rec.SPUCode, rec.SubcategoryName, rec.ClusterID,
				rec.RecommendedQuantityChange, strings.Join(sources, "|"),
				string(rec.State), rec.GateReason, rec.Rationale,
			); err != nil {
				return fmt.Errorf("error inserting recommendation %s/%s: %w", rec.StoreCode, rec.SPUCode, err)
			}
		}
		return nil
	})
}

func (r *recommendationRepository) GetRecommendations(ctx context.Context, filter domain.RecommendationFilter) ([]domain.Recommendation, int, error) {
	countQuery := `
        SELECT COUNT(*)
        FROM recommendations
        WHERE 1=1
    `

	query := `
        SELECT
            id, period_label, store_code, spu_code, subcategory_name, cluster_id,
            recommended_quantity_change, rule_sources, state, gate_reason, rationale, created_at
        FROM recommendations
        WHERE 1=1
    `

	var args []interface{}
	var conditions []string
	argCounter := 1

	if filter.PeriodLabel != "" {
		conditions = append(conditions, fmt.Sprintf("period_label = $%d", argCounter))
		args = append(args, filter.PeriodLabel)
		argCounter++
	}

	if len(filter.StoreCodes) > 0 {
		conditions = append(conditions, fmt.Sprintf("store_code = ANY($%d::text[])", argCounter))
		args = append(args, pq.Array(filter.StoreCodes))
		argCounter++
	}

	if len(filter.SPUCodes) > 0 {
		conditions = append(conditions, fmt.Sprintf("spu_code = ANY($%d::text[])", argCounter))
		args = append(args, pq.Array(filter.SPUCodes))
		argCounter++
	}

	if len(filter.States) > 0 {
		conditions = append(conditions, fmt.Sprintf("state = ANY($%d::text[])", argCounter))
		args = append(args, pq.Array(filter.States))
		argCounter++
	}

	if len(conditions) > 0 {
		whereClause := " AND " + strings.Join(conditions, " AND ")
		query += whereClause
		countQuery += whereClause
	}

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("error counting recommendations: %w", err)
	}

	query += " ORDER BY store_code, spu_code"

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCounter, argCounter+1)
		args = append(args, filter.PageSize, offset)
	}

	var recs []domain.Recommendation
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("error getting recommendations: %w", err)
	}

	return recs, total, nil
}

func (r *recommendationRepository) GetSummary(ctx context.Context, periodLabel string) (*domain.RecommendationSummary, error) {
	summary := &domain.RecommendationSummary{PeriodLabel: periodLabel}

	stateQuery := `
        SELECT state, COUNT(*) as count
        FROM recommendations
        WHERE period_label = $1
        GROUP BY state
        ORDER BY state
    `
	if err := r.db.SelectContext(ctx, &summary.ByState, stateQuery, periodLabel); err != nil {
		return nil, fmt.Errorf("error getting state counts: %w", err)
	}
	for _, sc := range summary.ByState {
		summary.TotalRows += sc.Count
	}

	// rule_sources stores the contributing rule numbers pipe-joined, so the
	// per-rule breakdown unnests them; a row netting two rules counts once
	// under each.
	ruleQuery := `
        SELECT rule, COUNT(*) as count
        FROM recommendations,
             unnest(string_to_array(rule_sources, '|')) AS rule
        WHERE period_label = $1 AND rule <> ''
        GROUP BY rule
        ORDER BY rule
    `
	if err := r.db.SelectContext(ctx, &summary.ByRule, ruleQuery, periodLabel); err != nil {
		return nil, fmt.Errorf("error getting rule counts: %w", err)
	}

	directionQuery := `
        SELECT
            COUNT(*) FILTER (WHERE recommended_quantity_change > 0) as increases,
            COUNT(*) FILTER (WHERE recommended_quantity_change < 0) as decreases,
            COUNT(*) FILTER (WHERE recommended_quantity_change = 0) as unchanged,
            COALESCE(SUM(recommended_quantity_change), 0) as net_units
        FROM recommendations
        WHERE period_label = $1 AND state = $2
    `
	row := r.db.QueryRowxContext(ctx, directionQuery, periodLabel, string(rules.Applied))
	if err := row.Scan(
		&summary.Direction.Increases,
		&summary.Direction.Decreases,
		&summary.Direction.Unchanged,
		&summary.NetUnitsChange,
	); err != nil {
		return nil, fmt.Errorf("error getting direction counts: %w", err)
	}

	return summary, nil
}

func (r *recommendationRepository) GetAvailablePeriods(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 30
	}

	query := `
        SELECT DISTINCT period_label
        FROM recommendations
        ORDER BY period_label DESC
        LIMIT $1
    `

	var periods []string
	if err := r.db.SelectContext(ctx, &periods, query, limit); err != nil {
		return nil, fmt.Errorf("error getting available periods: %w", err)
	}
	return periods, nil
}
