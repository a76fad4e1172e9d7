package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fastfish/assortment-engine/internal/rules"
)

// writeRuleCSV writes one rule stage's recommendations to an intermediate
// CSV under the period's directory.
func writeRuleCSV(cfg Config, periodLabel, filename string, recs []rules.RuleRecommendation) error {
	path := filepath.Join(cfg.IntermediateDir, periodLabel, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create intermediate directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{
		"store_code", "spu_code", "subcategory_name", "cluster_id", "rule_source",
		"quantity_change", "unit_price", "investment_required", "recommendation",
		"is_imbalanced", "rule9_applied", "suggestion_only", "opportunity_tier", "rationale",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range recs {
		record := []string{
			r.StoreCode,
			r.SPUCode,
			r.SubcategoryName,
			strconv.Itoa(r.ClusterID),
			strconv.Itoa(int(r.Source)),
			formatFloat(r.QuantityChange),
			formatFloat(r.UnitPrice),
			formatFloat(r.InvestmentRequired),
			r.Recommendation,
			strconv.FormatBool(r.IsImbalanced),
			strconv.FormatBool(r.Rule9Applied),
			strconv.FormatBool(r.SuggestionOnly),
			r.OpportunityTier,
			r.Rationale,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// writeGateCSV writes the blocked reduction candidates plus a trailing
// summary file so analysts can audit why reductions were withheld.
func writeGateCSV(cfg Config, periodLabel, filename string, blocked []rules.GatedCandidate, summary rules.GateSummary) error {
	path := filepath.Join(cfg.IntermediateDir, periodLabel, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create intermediate directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{"store_code", "spu_code", "subcategory_name", "quantity_change", "gate_eligibility", "gate_reason"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, b := range blocked {
		record := []string{
			b.Candidate.StoreCode,
			b.Candidate.SPUCode,
			b.Candidate.SubcategoryName,
			formatFloat(b.Candidate.QuantityChange),
			string(b.Result.Eligibility),
			b.Result.Reason,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	summaryPath := strings.TrimSuffix(path, ".csv") + "_summary.csv"
	sf, err := os.Create(summaryPath)
	if err != nil {
		return err
	}
	defer sf.Close()

	sw := csv.NewWriter(sf)
	defer sw.Flush()

	if err := sw.Write([]string{
		"total_candidates", "eligible_for_reduction", "blocked_total",
		"blocked_by_step7", "blocked_by_step8", "blocked_by_step9",
		"blocked_by_core", "blocked_by_ineligible",
	}); err != nil {
		return err
	}
	return sw.Write([]string{
		strconv.Itoa(summary.TotalCandidates),
		strconv.Itoa(summary.EligibleForReduction),
		strconv.Itoa(summary.BlockedTotal),
		strconv.Itoa(summary.BlockedByStep7),
		strconv.Itoa(summary.BlockedByStep8),
		strconv.Itoa(summary.BlockedByStep9),
		strconv.Itoa(summary.BlockedByCore),
		strconv.Itoa(summary.BlockedByIneligible),
	})
}

// writeConsolidatedCSV writes the final output file for a period.
func writeConsolidatedCSV(cfg Config, periodLabel string, recs []rules.ConsolidatedRecommendation) (string, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(cfg.OutputDir, fmt.Sprintf("consolidated_%s.csv", periodLabel))

	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{
		"store_code", "spu_code", "subcategory_name", "cluster_id",
		"recommended_quantity_change", "rule_sources", "state", "gate_reason", "rationale",
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for _, r := range recs {
		sources := make([]string, 0, len(r.RuleSources))
		for _, s := range r.RuleSources {
			sources = append(sources, strconv.Itoa(int(s)))
		}
		record := []string{
			r.StoreCode,
			r.SPUCode,
			r.SubcategoryName,
			strconv.Itoa(r.ClusterID),
			formatFloat(r.RecommendedQuantityChange),
			strings.Join(sources, "|"),
			string(r.State),
			r.GateReason,
			r.Rationale,
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	return path, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
