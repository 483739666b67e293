// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hwfix-dev/hwfix/internal/backup"
	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/core/step"
	"github.com/hwfix-dev/hwfix/internal/fixplan/condition"
)

// Runner executes the steps of a fix in one of three modes: Apply,
// Revert, or StatusOnly. It owns nothing beyond the single run; the
// orchestrator supplies the factory, backup store and probed facts.
type Runner struct {
	factory   *step.Factory
	backups   *backup.Store
	evaluator *condition.Evaluator
	facts     map[string]interface{}
	options   models.RunOptions
}

// New creates a runner for one run.
func New(factory *step.Factory, backups *backup.Store, facts map[string]interface{}, options models.RunOptions) (*Runner, error) {
	evaluator, err := condition.NewEvaluator()
	if err != nil {
		return nil, err
	}

	return &Runner{
		factory:   factory,
		backups:   backups,
		evaluator: evaluator,
		facts:     facts,
		options:   options,
	}, nil
}

// Run executes the fix's steps according to the run mode and returns
// the per-step results with the overall outcome.
func (r *Runner) Run(ctx context.Context, fix *models.Fix) ([]models.StepResult, models.RunOutcome, error) {
	switch r.options.Mode {
	case models.ModeStatusOnly:
		return r.runStatus(ctx, fix)
	case models.ModeRevert:
		return r.runRevert(ctx, fix)
	default:
		return r.runApply(ctx, fix)
	}
}

// runStatus reports each step's applied state without mutating anything.
func (r *Runner) runStatus(ctx context.Context, fix *models.Fix) ([]models.StepResult, models.RunOutcome, error) {
	results := make([]models.StepResult, 0, len(fix.Steps))

	for _, spec := range fix.Steps {
		result := r.checkStep(ctx, spec)
		results = append(results, result)
	}

	outcome := models.RunSuccess
	for _, res := range results {
		if res.Outcome == models.OutcomeFailed {
			outcome = models.RunPartialFailure
		}
	}
	return results, outcome, nil
}

func (r *Runner) checkStep(ctx context.Context, spec models.StepSpec) models.StepResult {
	start := time.Now()
	result := models.StepResult{StepID: spec.ID}

	matches, err := r.precondition(spec)
	if err != nil {
		return failResult(result, start, err)
	}
	if !matches {
		result.Outcome = models.OutcomeSkipped
		result.Duration = time.Since(start)
		return result
	}

	st, err := r.factory.Create(spec)
	if err != nil {
		return failResult(result, start, err)
	}

	applied, err := st.IsApplied(ctx)
	if err != nil {
		return failResult(result, start, err)
	}

	if applied {
		result.Outcome = models.OutcomeApplied
	} else {
		result.Outcome = models.OutcomeNotApplied
	}
	result.Duration = time.Since(start)
	return result
}

type appliedStep struct {
	index int // position in results
	step  step.Step
	spec  models.StepSpec
}

// runApply executes steps in forward order. Non-critical failures are
// recorded and execution continues; a critical failure stops forward
// progress and rolls back everything applied so far in reverse order.
func (r *Runner) runApply(ctx context.Context, fix *models.Fix) ([]models.StepResult, models.RunOutcome, error) {
	var results []models.StepResult
	var applied []appliedStep

	for i, spec := range fix.Steps {
		if r.options.Verbose {
			fmt.Printf("Step %d/%d: %s\n", i+1, len(fix.Steps), spec.ID)
		}

		start := time.Now()
		result := models.StepResult{StepID: spec.ID}

		matches, err := r.precondition(spec)
		if err != nil {
			results = append(results, failResult(result, start, err))
			if spec.Critical {
				return r.rollback(ctx, results, applied)
			}
			continue
		}
		if !matches && !r.options.Force {
			result.Outcome = models.OutcomeSkipped
			result.Duration = time.Since(start)
			results = append(results, result)
			continue
		}
		if !matches && r.options.Force {
			fmt.Printf("Warning: precondition for step %q not met, proceeding anyway (--force)\n", spec.ID)
		}

		st, err := r.factory.Create(spec)
		if err != nil {
			results = append(results, failResult(result, start, err))
			if spec.Critical {
				return r.rollback(ctx, results, applied)
			}
			continue
		}

		isApplied, err := st.IsApplied(ctx)
		if err != nil {
			results = append(results, failResult(result, start, err))
			if spec.Critical {
				return r.rollback(ctx, results, applied)
			}
			continue
		}
		if isApplied && !reappliesOnApply(st) {
			result.Outcome = models.OutcomeAlreadyApplied
			result.Duration = time.Since(start)
			results = append(results, result)
			continue
		}

		if r.options.DryRun {
			fmt.Printf("  Would apply: %s\n", st.Description())
			result.Outcome = models.OutcomeSkipped
			result.Duration = time.Since(start)
			results = append(results, result)
			continue
		}

		if err := r.snapshotPaths(st); err != nil {
			results = append(results, failResult(result, start, err))
			if spec.Critical {
				return r.rollback(ctx, results, applied)
			}
			continue
		}

		err = st.Apply(ctx)
		if err != nil && spec.Retriable && !errors.Is(err, step.ErrUnsupported) {
			fmt.Printf("Warning: step %q failed (%v), retrying once\n", spec.ID, err)
			err = st.Apply(ctx)
		}

		if err != nil {
			results = append(results, failResult(result, start, err))

			// Unsupported never aborts the run: the user is told what
			// to do by hand and the remaining steps still get their
			// chance, matching the warn-and-continue style of manual
			// hardware setups.
			if errors.Is(err, step.ErrUnsupported) {
				fmt.Printf("Warning: %v\n", err)
				continue
			}

			if spec.Critical {
				return r.rollback(ctx, results, applied)
			}
			fmt.Printf("Warning: step %q failed: %v\n", spec.ID, err)
			continue
		}

		result.Outcome = models.OutcomeApplied
		result.Duration = time.Since(start)
		results = append(results, result)
		applied = append(applied, appliedStep{index: len(results) - 1, step: st, spec: spec})
	}

	outcome := models.RunSuccess
	for _, res := range results {
		if res.Outcome == models.OutcomeFailed {
			outcome = models.RunPartialFailure
		}
	}
	return results, outcome, nil
}

// rollback reverts every step applied so far in reverse order, then
// restores the remaining file snapshots so mutated paths come back
// byte-identical.
func (r *Runner) rollback(ctx context.Context, results []models.StepResult, applied []appliedStep) ([]models.StepResult, models.RunOutcome, error) {
	fmt.Printf("Critical step failed, rolling back %d applied step(s)\n", len(applied))

	for i := len(applied) - 1; i >= 0; i-- {
		a := applied[i]
		if err := a.step.Revert(ctx); err != nil {
			fmt.Printf("Warning: rollback of step %q failed: %v\n", a.spec.ID, err)
			continue
		}
		results[a.index].Outcome = models.OutcomeRolledBack
	}

	if r.backups != nil {
		if err := r.backups.RestoreOutstanding(); err != nil {
			fmt.Printf("Warning: error restoring backups during rollback: %v\n", err)
		}
	}

	return results, models.RunRolledBack, nil
}

// runRevert undoes steps in reverse order. Every step gets an attempt
// regardless of earlier failures; failures accumulate in the report.
func (r *Runner) runRevert(ctx context.Context, fix *models.Fix) ([]models.StepResult, models.RunOutcome, error) {
	var results []models.StepResult

	for i := len(fix.Steps) - 1; i >= 0; i-- {
		spec := fix.Steps[i]
		start := time.Now()
		result := models.StepResult{StepID: spec.ID}

		st, err := r.factory.Create(spec)
		if err != nil {
			results = append(results, failResult(result, start, err))
			continue
		}

		isApplied, err := st.IsApplied(ctx)
		if err != nil {
			results = append(results, failResult(result, start, err))
			continue
		}
		if !isApplied {
			result.Outcome = models.OutcomeSkipped
			result.Duration = time.Since(start)
			results = append(results, result)
			continue
		}

		if r.options.DryRun {
			fmt.Printf("  Would revert: %s\n", st.Description())
			result.Outcome = models.OutcomeSkipped
			result.Duration = time.Since(start)
			results = append(results, result)
			continue
		}

		if err := st.Revert(ctx); err != nil {
			results = append(results, failResult(result, start, err))
			fmt.Printf("Warning: revert of step %q failed: %v\n", spec.ID, err)
			continue
		}

		result.Outcome = models.OutcomeReverted
		result.Duration = time.Since(start)
		results = append(results, result)
	}

	outcome := models.RunSuccess
	for _, res := range results {
		if res.Outcome == models.OutcomeFailed {
			outcome = models.RunPartialFailure
		}
	}
	return results, outcome, nil
}

func (r *Runner) precondition(spec models.StepSpec) (bool, error) {
	matches, err := r.evaluator.Evaluate(spec.Condition, r.facts)
	if err != nil {
		return false, fmt.Errorf("error evaluating precondition for step %q: %w", spec.ID, err)
	}
	return matches, nil
}

func (r *Runner) snapshotPaths(st step.Step) error {
	if r.backups == nil {
		return nil
	}
	for _, path := range st.MutatedPaths() {
		if _, err := r.backups.Snapshot(path); err != nil {
			return fmt.Errorf("error snapshotting %s: %w", path, err)
		}
	}
	return nil
}

// reappliesOnApply reports whether a step opted out of the
// already-applied short-circuit because its effect is transient.
func reappliesOnApply(st step.Step) bool {
	r, ok := st.(step.Reapplier)
	return ok && r.ReappliesOnApply()
}

func failResult(result models.StepResult, start time.Time, err error) models.StepResult {
	result.Outcome = models.OutcomeFailed
	result.Error = err.Error()
	result.Duration = time.Since(start)
	return result
}
