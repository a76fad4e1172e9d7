package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Worker executes the stage DAG for one period, wave by wave, with run and
// stage-job bookkeeping. A nil repository disables bookkeeping, which keeps
// the engine usable without a database.
type Worker struct {
	stages []Stage
	config Config
	repo   *Repository
	mu     sync.Mutex
}

// NewWorker creates a new engine worker.
func NewWorker(stages []Stage, config Config, repo *Repository) *Worker {
	return &Worker{
		stages: stages,
		config: config,
		repo:   repo,
	}
}

// ProcessPeriod runs every stage for one period's input bundle. Stages in
// the same wave run concurrently, bounded by the configured worker count.
func (w *Worker) ProcessPeriod(ctx context.Context, in *RunInput) (*Outputs, error) {
	log.Info().Str("period", in.PeriodLabel).Int("observations", len(in.Observations)).
		Int("stages", len(w.stages)).Msg("starting period run")

	waves, err := resolveWaves(w.stages)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stage order: %w", err)
	}

	run, jobs, err := w.beginRun(ctx, in.PeriodLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	out := NewOutputs()
	for _, wave := range waves {
		if err := w.processWave(ctx, run, jobs, wave, in, out); err != nil {
			w.finishRun(ctx, run, err)
			return nil, err
		}
	}

	w.finishRun(ctx, run, nil)
	if run != nil {
		log.Info().Str("period", in.PeriodLabel).Int("stages", run.CompletedStages).
			Int("rows", run.TotalRows).Msg("period run completed")
	}
	return out, nil
}

// processWave runs one wave of independent stages through a bounded pool.
func (w *Worker) processWave(ctx context.Context, run *Run, jobs map[string]*StageJob, wave []Stage, in *RunInput, out *Outputs) error {
	workerCount := w.config.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}

	stageChan := make(chan Stage, len(wave))
	errChan := make(chan error, len(wave))
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for stage := range stageChan {
				if err := w.processStage(ctx, run, jobs[stage.Name()], stage, in, out); err != nil {
					select {
					case errChan <- err:
					default:
					}
				}
			}
		}()
	}

	for _, stage := range wave {
		select {
		case <-ctx.Done():
			close(stageChan)
			wg.Wait()
			return ctx.Err()
		case stageChan <- stage:
		}
	}
	close(stageChan)

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return err
	}
	return nil
}

// processStage runs one stage with retries and bookkeeping.
func (w *Worker) processStage(ctx context.Context, run *Run, job *StageJob, stage Stage, in *RunInput, out *Outputs) error {
	startTime := time.Now()
	w.updateJob(ctx, job, func(j *StageJob) { j.Status = StageStatusProcessing })

	var rowCount int
	var err error
	for attempt := 0; ; attempt++ {
		rowCount, err = stage.Evaluate(ctx, in, out)
		if err == nil {
			break
		}
		if attempt+1 >= w.config.RetryAttempts || ctx.Err() != nil {
			break
		}
		log.Warn().Err(err).Str("stage", stage.Name()).Int("attempt", attempt+1).
			Msg("stage failed, retrying")
		w.updateJob(ctx, job, func(j *StageJob) { j.RetryCount = attempt + 1 })
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.config.RetryBackoff):
		}
	}
	if err != nil {
		w.updateJob(ctx, job, func(j *StageJob) {
			j.Status = StageStatusFailed
			j.ErrorMessage = err.Error()
		})
		return fmt.Errorf("stage %s failed: %w", stage.Name(), err)
	}

	now := time.Now()
	w.updateJob(ctx, job, func(j *StageJob) {
		j.Status = StageStatusCompleted
		j.RowCount = rowCount
		j.ProcessedAt = &now
	})

	if run != nil {
		w.mu.Lock()
		run.CompletedStages++
		run.TotalRows += rowCount
		w.mu.Unlock()
		if w.repo != nil {
			if err := w.repo.IncrementCompletedStages(ctx, run.ID, rowCount); err != nil {
				log.Warn().Err(err).Str("stage", stage.Name()).Msg("failed to update run progress")
			}
		}
	}

	log.Info().Str("stage", stage.Name()).Int("rows", rowCount).
		Dur("duration", time.Since(startTime)).Msg("stage completed")
	return nil
}

// beginRun creates (or resumes) the run record plus one job per stage.
func (w *Worker) beginRun(ctx context.Context, periodLabel string) (*Run, map[string]*StageJob, error) {
	jobs := make(map[string]*StageJob, len(w.stages))
	if w.repo == nil {
		for _, s := range w.stages {
			jobs[s.Name()] = &StageJob{StageName: s.Name(), Status: StageStatusQueued}
		}
		return nil, jobs, nil
	}

	run, err := w.repo.GetRunByPeriod(ctx, periodLabel)
	if err != nil {
		return nil, nil, err
	}
	if run == nil {
		run = &Run{
			PeriodLabel: periodLabel,
			Status:      StatusPending,
			TotalStages: len(w.stages),
			StartedAt:   time.Now(),
		}
		if err := w.repo.CreateRun(ctx, run); err != nil {
			return nil, nil, err
		}
	} else {
		run.Status = StatusPending
		run.TotalStages = len(w.stages)
		run.CompletedStages = 0
		run.TotalRows = 0
		run.CompletedAt = nil
		run.ErrorMessage = ""
	}

	for _, s := range w.stages {
		job := &StageJob{RunID: run.ID, StageName: s.Name(), Status: StageStatusQueued}
		if err := w.repo.CreateStageJob(ctx, job); err != nil {
			return nil, nil, err
		}
		jobs[s.Name()] = job
	}

	run.Status = StatusProcessing
	if err := w.repo.UpdateRun(ctx, run); err != nil {
		return nil, nil, err
	}
	return run, jobs, nil
}

// finishRun records the terminal run status.
func (w *Worker) finishRun(ctx context.Context, run *Run, runErr error) {
	if run == nil || w.repo == nil {
		return
	}
	now := time.Now()
	run.CompletedAt = &now
	if runErr != nil {
		run.Status = StatusFailed
		run.ErrorMessage = runErr.Error()
	} else {
		run.Status = StatusCompleted
	}
	if err := w.repo.UpdateRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("period", run.PeriodLabel).Msg("failed to finalize run record")
	}
}

// updateJob mutates a stage job and persists it when a repository is wired.
func (w *Worker) updateJob(ctx context.Context, job *StageJob, mutate func(*StageJob)) {
	if job == nil {
		return
	}
	w.mu.Lock()
	mutate(job)
	w.mu.Unlock()
	if w.repo != nil && job.ID != 0 {
		if err := w.repo.UpdateStageJob(ctx, job); err != nil {
			log.Warn().Err(err).Str("stage", job.StageName).Msg("failed to update stage job")
		}
	}
}

// resolveWaves orders stages into waves where every stage's dependencies
// live in an earlier wave. Unknown or cyclic dependencies are configuration
// errors.
func resolveWaves(stages []Stage) ([][]Stage, error) {
	byName := make(map[string]Stage, len(stages))
	for _, s := range stages {
		if _, dup := byName[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate stage name %q", s.Name())
		}
		byName[s.Name()] = s
	}
	for _, s := range stages {
		for _, dep := range s.DependsOn() {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("stage %q depends on unknown stage %q", s.Name(), dep)
			}
		}
	}

	done := make(map[string]bool, len(stages))
	remaining := append([]Stage(nil), stages...)

	var waves [][]Stage
	for len(remaining) > 0 {
		var wave []Stage
		var next []Stage
		for _, s := range remaining {
			ready := true
			for _, dep := range s.DependsOn() {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, s)
			} else {
				next = append(next, s)
			}
		}
		if len(wave) == 0 {
			return nil, fmt.Errorf("dependency cycle among %d stages", len(remaining))
		}
		for _, s := range wave {
			done[s.Name()] = true
		}
		waves = append(waves, wave)
		remaining = next
	}
	return waves, nil
}
