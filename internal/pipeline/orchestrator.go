package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fastfish/assortment-engine/internal/rules"
)

// Orchestrator coordinates running the stage DAG over one or more periods.
type Orchestrator struct {
	cfg     Config
	ruleCfg rules.RuleConfig
	ref     *rules.ReferenceData
	repo    *Repository
	makeW   func(stages []Stage, cfg Config, repo *Repository) *Worker
}

// NewOrchestrator creates a new Orchestrator. repo may be nil when run
// bookkeeping is not wanted.
func NewOrchestrator(cfg Config, ruleCfg rules.RuleConfig, ref *rules.ReferenceData, repo *Repository) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		ruleCfg: ruleCfg,
		ref:     ref,
		repo:    repo,
		makeW:   NewWorker,
	}
}

// RunPeriod loads the input bundle for one period and executes every stage.
func (o *Orchestrator) RunPeriod(ctx context.Context, periodLabel string) (*Outputs, error) {
	in, err := LoadRunInput(o.cfg, periodLabel, o.ref)
	if err != nil {
		return nil, fmt.Errorf("failed to load input for period %s: %w", periodLabel, err)
	}

	worker := o.makeW(DefaultStages(o.cfg, o.ruleCfg, o.ref), o.cfg, o.repo)
	out, err := worker.ProcessPeriod(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to process period %s: %w", periodLabel, err)
	}
	return out, nil
}

// Run executes the given periods in label order. Periods are independent,
// but they run sequentially so one bad period fails fast without burning
// through the rest.
func (o *Orchestrator) Run(ctx context.Context, periodLabels []string) error {
	labels := append([]string(nil), periodLabels...)
	sort.Strings(labels)

	for _, label := range labels {
		if _, err := o.RunPeriod(ctx, label); err != nil {
			return err
		}
	}
	return nil
}

// DiscoverPeriods lists the period labels with an observation file present
// in the input directory.
func DiscoverPeriods(inputDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(inputDir, "observations_*.csv"))
	if err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(matches))
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), ".csv")
		label := strings.TrimPrefix(base, "observations_")
		if label != "" && label != base {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels, nil
}
