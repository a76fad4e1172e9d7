package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fastfish/assortment-engine/internal/rules"
)

// Stage names. Dependencies below reference these, so they double as the
// stage job identifiers in the runs tables.
const (
	StageMissingCategory   = "step7_missing_category"
	StageImbalance         = "step8_imbalance"
	StageBelowMinimum      = "step9_below_minimum"
	StageOvercapacity      = "step10_overcapacity"
	StageMissedOpportunity = "step11_missed_opportunity"
	StagePerformance       = "step12_performance"
	StageReductionGate     = "gate_reductions"
	StageConsolidate       = "step13_consolidate"
)

// DefaultStages builds the full recommendation DAG for one period. Rules
// without cross-rule inputs run in the first wave; the below-minimum rule
// waits for the imbalance output; the gate and consolidator run last.
func DefaultStages(cfg Config, ruleCfg rules.RuleConfig, ref *rules.ReferenceData) []Stage {
	return []Stage{
		&missingCategoryStage{cfg: cfg, rule: rules.NewMissingCategoryRule(ruleCfg, ref)},
		&imbalanceStage{cfg: cfg, rule: rules.NewImbalanceRule(ruleCfg)},
		&belowMinimumStage{cfg: cfg, rule: rules.NewBelowMinimumRule(ruleCfg, ref)},
		&overcapacityStage{cfg: cfg, rule: rules.NewOvercapacityRule(ruleCfg)},
		&missedOpportunityStage{cfg: cfg, rule: rules.NewMissedOpportunityRule(ruleCfg, ref)},
		&performanceStage{cfg: cfg, rule: rules.NewPerformanceRule(ruleCfg)},
		&reductionGateStage{cfg: cfg, gate: rules.NewReductionGate(ruleCfg, ref)},
		&consolidateStage{cfg: cfg, consolidator: rules.NewConsolidator(ruleCfg, ref)},
	}
}

// priorRule fetches an upstream stage's recommendations. A stage that never
// ran degrades to an empty set with a warning, never an error.
func priorRule(out *Outputs, stageName string) []rules.RuleRecommendation {
	recs, ok := out.Rule(stageName)
	if !ok {
		log.Warn().Str("stage", stageName).Msg("upstream stage output missing, treating as empty")
	}
	return recs
}

type missingCategoryStage struct {
	cfg  Config
	rule *rules.MissingCategoryRule
}

func (s *missingCategoryStage) Name() string        { return StageMissingCategory }
func (s *missingCategoryStage) DependsOn() []string { return nil }
func (s *missingCategoryStage) OutputFile() string  { return StageMissingCategory + ".csv" }

func (s *missingCategoryStage) Evaluate(ctx context.Context, in *RunInput, out *Outputs) (int, error) {
	recs := s.rule.Evaluate(in.Observations, in.StoreTemps, in.PeriodLabel)
	out.SetRule(s.Name(), recs)
	if err := writeRuleCSV(s.cfg, in.PeriodLabel, s.OutputFile(), recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

type imbalanceStage struct {
	cfg  Config
	rule *rules.ImbalanceRule
}

func (s *imbalanceStage) Name() string        { return StageImbalance }
func (s *imbalanceStage) DependsOn() []string { return nil }
func (s *imbalanceStage) OutputFile() string  { return StageImbalance + ".csv" }

func (s *imbalanceStage) Evaluate(ctx context.Context, in *RunInput, out *Outputs) (int, error) {
	recs := s.rule.Evaluate(in.Observations)
	out.SetRule(s.Name(), recs)
	if err := writeRuleCSV(s.cfg, in.PeriodLabel, s.OutputFile(), recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

type belowMinimumStage struct {
	cfg  Config
	rule *rules.BelowMinimumRule
}

func (s *belowMinimumStage) Name() string        { return StageBelowMinimum }
func (s *belowMinimumStage) DependsOn() []string { return []string{StageImbalance} }
func (s *belowMinimumStage) OutputFile() string  { return StageBelowMinimum + ".csv" }

func (s *belowMinimumStage) Evaluate(ctx context.Context, in *RunInput, out *Outputs) (int, error) {
	adjusted := make(map[rules.RowKey]bool)
	for _, rec := range priorRule(out, StageImbalance) {
		if rec.IsImbalanced {
			adjusted[rules.RowKey{StoreCode: rec.StoreCode, SPUCode: rec.SPUCode}] = true
		}
	}

	recs := s.rule.EvaluateAll(in.Observations, in.Eligibilities, in.ManualMinimums, adjusted)
	out.SetRule(s.Name(), recs)
	if err := writeRuleCSV(s.cfg, in.PeriodLabel, s.OutputFile(), recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

type overcapacityStage struct {
	cfg  Config
	rule *rules.OvercapacityRule
}

func (s *overcapacityStage) Name() string        { return StageOvercapacity }
func (s *overcapacityStage) DependsOn() []string { return nil }
func (s *overcapacityStage) OutputFile() string  { return StageOvercapacity + ".csv" }

func (s *overcapacityStage) Evaluate(ctx context.Context, in *RunInput, out *Outputs) (int, error) {
	recs := s.rule.Evaluate(in.Observations)
	out.SetRule(s.Name(), recs)
	if err := writeRuleCSV(s.cfg, in.PeriodLabel, s.OutputFile(), recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

type missedOpportunityStage struct {
	cfg  Config
	rule *rules.MissedOpportunityRule
}

func (s *missedOpportunityStage) Name() string        { return StageMissedOpportunity }
func (s *missedOpportunityStage) DependsOn() []string { return nil }
func (s *missedOpportunityStage) OutputFile() string  { return StageMissedOpportunity + ".csv" }

func (s *missedOpportunityStage) Evaluate(ctx context.Context, in *RunInput, out *Outputs) (int, error) {
	recs := s.rule.Evaluate(in.Observations, in.StoreTemps, in.PeriodLabel)
	out.SetRule(s.Name(), recs)
	if err := writeRuleCSV(s.cfg, in.PeriodLabel, s.OutputFile(), recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

type performanceStage struct {
	cfg  Config
	rule *rules.PerformanceRule
}

func (s *performanceStage) Name() string        { return StagePerformance }
func (s *performanceStage) DependsOn() []string { return nil }
func (s *performanceStage) OutputFile() string  { return StagePerformance + ".csv" }

func (s *performanceStage) Evaluate(ctx context.Context, in *RunInput, out *Outputs) (int, error) {
	recs := s.rule.Evaluate(in.Observations)
	out.SetRule(s.Name(), recs)
	if err := writeRuleCSV(s.cfg, in.PeriodLabel, s.OutputFile(), recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

// reductionGateStage audits the overcapacity candidates against the
// increase rules and publishes the blocked set plus the batch summary. The
// consolidator applies the same gate when netting, so this stage exists for
// reporting, not for filtering the data flow.
type reductionGateStage struct {
	cfg  Config
	gate *rules.ReductionGate
}

func (s *reductionGateStage) Name() string { return StageReductionGate }
func (s *reductionGateStage) DependsOn() []string {
	return []string{StageMissingCategory, StageImbalance, StageBelowMinimum, StageOvercapacity}
}
func (s *reductionGateStage) OutputFile() string { return StageReductionGate + ".csv" }

func (s *reductionGateStage) Evaluate(ctx context.Context, in *RunInput, out *Outputs) (int, error) {
	candidates := priorRule(out, StageOvercapacity)

	_, blocked, summary := s.gate.Apply(
		candidates,
		priorRule(out, StageMissingCategory),
		priorRule(out, StageImbalance),
		priorRule(out, StageBelowMinimum),
		in.Eligibilities,
	)
	out.SetGateSummary(summary)

	if err := writeGateCSV(s.cfg, in.PeriodLabel, s.OutputFile(), blocked, summary); err != nil {
		return 0, err
	}
	return len(blocked), nil
}

type consolidateStage struct {
	cfg          Config
	consolidator *rules.Consolidator
}

func (s *consolidateStage) Name() string { return StageConsolidate }
func (s *consolidateStage) DependsOn() []string {
	return []string{
		StageMissingCategory, StageImbalance, StageBelowMinimum,
		StageOvercapacity, StageMissedOpportunity, StagePerformance,
		StageReductionGate,
	}
}
func (s *consolidateStage) OutputFile() string { return StageConsolidate + ".csv" }

func (s *consolidateStage) Evaluate(ctx context.Context, in *RunInput, out *Outputs) (int, error) {
	observations := make(map[rules.RowKey]rules.StoreProductObservation, len(in.Observations))
	for _, o := range in.Observations {
		observations[rules.RowKey{StoreCode: o.StoreCode, SPUCode: o.SPUCode}] = o
	}

	recs, err := s.consolidator.Consolidate(rules.RuleOutputs{
		Missing:      priorRule(out, StageMissingCategory),
		Imbalance:    priorRule(out, StageImbalance),
		BelowMinimum: priorRule(out, StageBelowMinimum),
		Overcapacity: priorRule(out, StageOvercapacity),
		Opportunity:  priorRule(out, StageMissedOpportunity),
		Performance:  priorRule(out, StagePerformance),
	}, observations, in.Eligibilities)
	if err != nil {
		return 0, fmt.Errorf("consolidation failed: %w", err)
	}
	out.SetConsolidated(recs)

	path, err := writeConsolidatedCSV(s.cfg, in.PeriodLabel, recs)
	if err != nil {
		return 0, err
	}
	log.Info().Str("period", in.PeriodLabel).Int("rows", len(recs)).Str("path", path).
		Msg("consolidated recommendations written")
	return len(recs), nil
}
