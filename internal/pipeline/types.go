package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fastfish/assortment-engine/internal/rules"
)

// Stage defines the interface every pipeline step must implement
type Stage interface {
	// Name returns the unique identifier for this stage
	Name() string

	// DependsOn lists the stage names whose outputs must exist before this
	// stage may run. Stages with disjoint dependencies run concurrently.
	DependsOn() []string

	// Evaluate computes the stage output for one period and records it in out
	Evaluate(ctx context.Context, in *RunInput, out *Outputs) (rowCount int, err error)

	// OutputFile returns the CSV filename written by this stage under the
	// period's intermediate directory
	OutputFile() string
}

// RunInput is the immutable input bundle for one period run. It is shared
// by all stages and must not be mutated after loading.
type RunInput struct {
	PeriodLabel    string
	Observations   []rules.StoreProductObservation
	StoreTemps     map[string]*float64
	ManualMinimums map[rules.RowKey]float64
	Eligibilities  map[rules.RowKey]rules.EligibilityStatus
}

// Outputs collects per-stage results for one run. Stages at the same DAG
// depth write concurrently, so access goes through the locked accessors.
type Outputs struct {
	mu           sync.Mutex
	ruleRecs     map[string][]rules.RuleRecommendation
	gateSummary  *rules.GateSummary
	consolidated []rules.ConsolidatedRecommendation
}

// NewOutputs creates an empty output set.
func NewOutputs() *Outputs {
	return &Outputs{ruleRecs: make(map[string][]rules.RuleRecommendation)}
}

// SetRule records a rule stage's recommendations.
func (o *Outputs) SetRule(stageName string, recs []rules.RuleRecommendation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ruleRecs[stageName] = recs
}

// Rule returns a prior stage's recommendations. ok is false when the stage
// never ran; callers treat that as an empty set, not an error.
func (o *Outputs) Rule(stageName string) (recs []rules.RuleRecommendation, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	recs, ok = o.ruleRecs[stageName]
	return recs, ok
}

// SetGateSummary records the reduction gate batch summary.
func (o *Outputs) SetGateSummary(s rules.GateSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gateSummary = &s
}

// GateSummary returns the gate summary if the gate stage ran.
func (o *Outputs) GateSummary() (rules.GateSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gateSummary == nil {
		return rules.GateSummary{}, false
	}
	return *o.gateSummary, true
}

// SetConsolidated records the final consolidated recommendations.
func (o *Outputs) SetConsolidated(recs []rules.ConsolidatedRecommendation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.consolidated = recs
}

// Consolidated returns the final consolidated recommendations.
func (o *Outputs) Consolidated() []rules.ConsolidatedRecommendation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.consolidated
}

// Config holds configuration for an engine run
type Config struct {
	InputDir        string        // Directory holding the period input CSVs
	IntermediateDir string        // Directory for per-stage outputs
	OutputDir       string        // Directory for final consolidated CSVs
	WorkerCount     int           // Number of concurrent stage workers per wave
	RetryAttempts   int           // Number of retries per failed stage
	RetryBackoff    time.Duration // Backoff duration between retries
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		InputDir:        filepath.Join("data", "input"),
		IntermediateDir: filepath.Join("data", "intermediate"),
		OutputDir:       filepath.Join("data", "output"),
		WorkerCount:     4,
		RetryAttempts:   3,
		RetryBackoff:    30 * time.Second,
	}
}

// RunStatus represents the current state of an engine run
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// StageJobStatus represents the state of a single stage execution
type StageJobStatus string

const (
	StageStatusQueued     StageJobStatus = "queued"
	StageStatusProcessing StageJobStatus = "processing"
	StageStatusCompleted  StageJobStatus = "completed"
	StageStatusFailed     StageJobStatus = "failed"
)

// Run tracks a single execution of the engine for a specific period
type Run struct {
	ID              int64
	PeriodLabel     string
	Status          RunStatus
	TotalStages     int
	CompletedStages int
	TotalRows       int
	StartedAt       time.Time
	CompletedAt     *time.Time
	ErrorMessage    string
}

// StageJob tracks the execution of a single stage within a run
type StageJob struct {
	ID           int64
	RunID        int64
	StageName    string
	Status       StageJobStatus
	RowCount     int
	ErrorMessage string
	ProcessedAt  *time.Time
	RetryCount   int
}
