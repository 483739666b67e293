// SPDX-License-Identifier: Apache-2.0

// Package orchestrator drives one full run of a fix: probing the
// system, evaluating applicability, executing the steps through the
// runner, and recording stamps, snapshots and the run report.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/hwfix-dev/hwfix/internal/backup"
	"github.com/hwfix-dev/hwfix/internal/cmdexec"
	"github.com/hwfix-dev/hwfix/internal/core/config"
	"github.com/hwfix-dev/hwfix/internal/core/format"
	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/core/step"
	"github.com/hwfix-dev/hwfix/internal/fixplan"
	"github.com/hwfix-dev/hwfix/internal/fixplan/condition"
	"github.com/hwfix-dev/hwfix/internal/pkgmgr"
	"github.com/hwfix-dev/hwfix/internal/probe"
	"github.com/hwfix-dev/hwfix/internal/runner"
	"github.com/hwfix-dev/hwfix/internal/service"
	"github.com/hwfix-dev/hwfix/internal/version"
)

// Orchestrator wires the probing, execution and bookkeeping layers
// together for a single run.
type Orchestrator struct {
	cfg      *config.Config
	options  models.RunOptions
	prober   *probe.Prober
	services step.ServiceManager
	runner   cmdexec.Runner
}

// New creates an orchestrator with the production collaborators.
func New(cfg *config.Config, options models.RunOptions) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		options:  options,
		prober:   probe.New(),
		services: service.NewController(),
	}
}

// WithProber overrides the system prober.
func (o *Orchestrator) WithProber(p *probe.Prober) *Orchestrator {
	o.prober = p
	return o
}

// WithServices overrides the service manager.
func (o *Orchestrator) WithServices(s step.ServiceManager) *Orchestrator {
	o.services = s
	return o
}

// WithRunner overrides the command runner used by steps and the
// package installer.
func (o *Orchestrator) WithRunner(r cmdexec.Runner) *Orchestrator {
	o.runner = r
	return o
}

// Run executes fix in the mode carried by the orchestrator's options
// and returns the run report. A non-nil report is returned alongside
// most errors so callers can still render what happened.
func (o *Orchestrator) Run(ctx context.Context, fix *models.Fix) (*models.RunReport, error) {
	runID := uuid.NewString()
	report := &models.RunReport{
		RunID:     runID,
		FixName:   fix.Name,
		Mode:      o.options.Mode,
		StartedAt: time.Now().UTC(),
		Outcome:   models.RunAborted,
	}

	facts, err := o.gatherFacts(ctx, fix)
	if err != nil {
		return report, fmt.Errorf("error probing system: %w", err)
	}
	report.System = o.fingerprint(fix)

	applies, err := o.fixApplies(fix, facts)
	if err != nil {
		return report, err
	}
	if !applies {
		if !o.options.Force {
			fmt.Printf("Fix %q does not apply to this system; nothing to do.\n", fix.Name)
			report.Outcome = models.RunSuccess
			return report, nil
		}
		fmt.Printf("Warning: fix %q does not match this system, continuing anyway (--force)\n", fix.Name)
	}

	if o.options.Mode == models.ModeRevert {
		stamp, found, err := config.ReadStamp(fix.Name)
		if err != nil {
			return report, fmt.Errorf("error reading applied stamp: %w", err)
		}
		if !found && !o.options.Force {
			return report, fmt.Errorf("fix %q is not recorded as applied on this system; use --force to revert anyway", fix.Name)
		}
		if found && o.options.Verbose {
			fmt.Printf("Fix %q was applied at %s (run %s)\n", fix.Name, stamp.AppliedAt, stamp.RunID)
		}
	}

	if err := fixplan.SortSteps(fix); err != nil {
		return report, err
	}

	env, err := o.buildEnvironment(facts, fix)
	if err != nil {
		return report, err
	}
	factory := step.NewFactory(env)
	factory.RegisterDefaultTypes()

	if err := fixplan.ExpandParams(fix, factory, o.expansionData(facts)); err != nil {
		return report, err
	}

	var store *backup.Store
	runCtx := ctx
	if o.options.Mode == models.ModeApply && !o.options.DryRun {
		o.sweepAbandonedRuns()

		store, err = o.openApplyStore(fix, runID)
		if err != nil {
			return report, fmt.Errorf("error creating backup store: %w", err)
		}

		var cancel context.CancelFunc
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
		stop := restoreOnInterrupt(store, cancel)
		defer stop()
	}

	r, err := runner.New(factory, store, facts, o.options)
	if err != nil {
		return report, err
	}

	results, outcome, runErr := r.Run(runCtx, fix)
	report.Results = results
	report.Outcome = outcome

	o.settle(fix, report, store)

	if o.options.Mode != models.ModeStatusOnly && !o.options.DryRun {
		if err := o.persistReport(report); err != nil {
			fmt.Printf("Warning: failed to persist run report: %v\n", err)
		}
	}

	return report, runErr
}

// settle records the run's side effects once the runner has finished.
// Snapshots taken during apply are retained for as long as the fix
// stays applied so revert can bring the original files back; the
// applied stamp records which backup run holds them. Revert restores
// those originals and then drops the stamp.
func (o *Orchestrator) settle(fix *models.Fix, report *models.RunReport, store *backup.Store) {
	if o.options.DryRun {
		return
	}

	switch o.options.Mode {
	case models.ModeApply:
		if report.Outcome != models.RunSuccess && report.Outcome != models.RunPartialFailure {
			return
		}

		backupRun := ""
		if store != nil {
			if len(store.Outstanding()) > 0 {
				backupRun = store.RunID()
			} else if err := store.Commit(); err != nil {
				fmt.Printf("Warning: failed to clean up backup directory: %v\n", err)
			}
		}

		stamp := &config.Stamp{
			FixName:       fix.Name,
			Version:       version.Version,
			RunID:         report.RunID,
			KernelVersion: report.System.KernelVersion,
			BackupRunID:   backupRun,
		}
		if err := config.WriteStamp(stamp); err != nil {
			fmt.Printf("Warning: failed to record fix as applied: %v\n", err)
		}
	case models.ModeRevert:
		if report.Outcome != models.RunSuccess {
			return
		}
		o.restoreOriginals(fix)
		if err := config.RemoveStamp(fix.Name); err != nil {
			fmt.Printf("Warning: failed to remove applied stamp: %v\n", err)
		}
	}
}

// openApplyStore creates the run's snapshot store. When an earlier
// apply of the same fix left retained snapshots, that store is
// reopened, so the pre-first-apply content stays the restore point and
// each path is still snapshotted at most once.
func (o *Orchestrator) openApplyStore(fix *models.Fix, runID string) (*backup.Store, error) {
	stamp, found, err := config.ReadStamp(fix.Name)
	if err == nil && found && stamp.BackupRunID != "" {
		store, openErr := o.openBackupRun(stamp.BackupRunID)
		if openErr != nil {
			return nil, openErr
		}
		if store != nil {
			return store, nil
		}
	}
	return backup.NewStore(o.cfg.BackupRoot, runID)
}

// openBackupRun opens a retained snapshot directory, or returns nil
// when it no longer exists.
func (o *Orchestrator) openBackupRun(runID string) (*backup.Store, error) {
	manifest := filepath.Join(o.cfg.BackupRoot, runID, "manifest.yaml")
	if _, err := os.Stat(manifest); os.IsNotExist(err) {
		return nil, nil
	}
	return backup.Open(o.cfg.BackupRoot, runID)
}

// restoreOriginals puts back the pre-apply content of every path the
// applied run snapshotted. The snapshot directory removes itself once
// everything is restored.
func (o *Orchestrator) restoreOriginals(fix *models.Fix) {
	stamp, found, err := config.ReadStamp(fix.Name)
	if err != nil || !found || stamp.BackupRunID == "" {
		return
	}

	store, err := o.openBackupRun(stamp.BackupRunID)
	if err != nil {
		fmt.Printf("Warning: failed to open snapshots of run %s: %v\n", stamp.BackupRunID, err)
		return
	}
	if store == nil {
		return
	}
	if err := store.RestoreOutstanding(); err != nil {
		fmt.Printf("Warning: failed to restore original files: %v\n", err)
	}
}

// sweepAbandonedRuns restores snapshots left behind by interrupted
// runs. A snapshot directory is live only while an applied stamp
// references it; anything else under the backup root belongs to a run
// that never settled.
func (o *Orchestrator) sweepAbandonedRuns() {
	runs, err := backup.Runs(o.cfg.BackupRoot)
	if err != nil || len(runs) == 0 {
		return
	}
	stamped, err := config.StampedBackupRuns()
	if err != nil {
		return
	}

	for _, runID := range runs {
		if stamped[runID] {
			continue
		}
		store, err := backup.Open(o.cfg.BackupRoot, runID)
		if err != nil {
			fmt.Printf("Warning: failed to open snapshots of interrupted run %s: %v\n", runID, err)
			continue
		}
		fmt.Printf("Warning: restoring snapshots left by interrupted run %s\n", runID)
		if err := store.RestoreOutstanding(); err != nil {
			fmt.Printf("Warning: failed to restore snapshots of run %s: %v\n", runID, err)
		}
	}
}

// gatherFacts merges the base system facts with the fix's declared
// fact probes.
func (o *Orchestrator) gatherFacts(ctx context.Context, fix *models.Fix) (map[string]interface{}, error) {
	facts, err := o.prober.BaseFacts()
	if err != nil {
		return nil, err
	}

	fixFacts, err := probe.GatherFacts(ctx, o.prober, o.services, fix.Facts)
	if err != nil {
		return nil, err
	}
	for name, value := range fixFacts {
		facts[name] = value
	}
	return facts, nil
}

// expansionData is what parameter references may draw from: probed
// facts first, explicit --param overrides on top.
func (o *Orchestrator) expansionData(facts map[string]interface{}) map[string]interface{} {
	data := make(map[string]interface{}, len(facts)+len(o.options.ExtraParams))
	for k, v := range facts {
		data[k] = v
	}
	for k, v := range o.options.ExtraParams {
		data[k] = v
	}
	return data
}

func (o *Orchestrator) fixApplies(fix *models.Fix, facts map[string]interface{}) (bool, error) {
	if fix.Condition == "" {
		return true, nil
	}
	evaluator, err := condition.NewEvaluator()
	if err != nil {
		return false, err
	}
	matches, err := evaluator.Evaluate(fix.Condition, facts)
	if err != nil {
		return false, fmt.Errorf("error evaluating condition for fix %q: %w", fix.Name, err)
	}
	return matches, nil
}

func (o *Orchestrator) buildEnvironment(facts map[string]interface{}, fix *models.Fix) (step.Environment, error) {
	family, _ := facts["distro_family"].(string)
	if family == "" {
		family = string(probe.FamilyUnknown)
	}

	installer := pkgmgr.NewInstaller(probe.DistroFamily(family), fix.PackageSets, o.options.Verbose)
	if o.runner != nil {
		installer = installer.WithRunner(o.runner)
	}

	return step.Environment{
		Prober:       o.prober,
		Services:     o.services,
		Packages:     packageAdapter{installer: installer},
		Runner:       o.runner,
		TemplateDirs: o.cfg.TemplatePaths(o.options.WorkingDir),
		WorkingDir:   o.options.WorkingDir,
		Verbose:      o.options.Verbose,
	}, nil
}

// fingerprint identifies the probed system for the run report. The
// hardware IDs are the ones the fix declared interest in.
func (o *Orchestrator) fingerprint(fix *models.Fix) models.Fingerprint {
	var ids []string
	for _, spec := range fix.Facts {
		if spec.ID != "" {
			ids = append(ids, spec.ID)
		}
	}
	sort.Strings(ids)

	fp, err := o.prober.Fingerprint(ids)
	if err != nil {
		fmt.Printf("Warning: failed to fingerprint system: %v\n", err)
	}
	return fp
}

func (o *Orchestrator) persistReport(report *models.RunReport) error {
	if err := os.MkdirAll(o.cfg.ReportsDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(o.cfg.ReportsDir, report.RunID+".yaml")
	return format.WriteYAML(path, report)
}

// restoreOnInterrupt restores all outstanding snapshots if the process
// receives SIGINT or SIGTERM mid-run, then exits with status 2. The
// returned stop function disarms the handler.
func restoreOnInterrupt(store *backup.Store, cancel context.CancelFunc) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigs:
			fmt.Printf("\nReceived %s, restoring snapshots before exiting...\n", sig)
			if err := abortRun(cancel, store); err != nil {
				fmt.Printf("Error: failed to restore snapshots: %v\n", err)
			}
			os.Exit(2)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// abortRun stops in-flight step execution before putting the mutated
// paths back, so the restore cannot race the write it is undoing.
func abortRun(cancel context.CancelFunc, store *backup.Store) error {
	cancel()
	return store.RestoreOutstanding()
}

// packageAdapter presents the package installer to steps, folding the
// installer's result classification into the error conventions steps
// understand.
type packageAdapter struct {
	installer *pkgmgr.Installer
}

func (a packageAdapter) InstallSet(ctx context.Context, setName string) error {
	return resultErr(a.installer.Install(ctx, setName))
}

func (a packageAdapter) RemoveSet(ctx context.Context, setName string) error {
	return resultErr(a.installer.Remove(ctx, setName))
}

func (a packageAdapter) SetInstalled(ctx context.Context, setName string) (bool, error) {
	return a.installer.SetInstalled(ctx, setName)
}

func resultErr(res pkgmgr.Result) error {
	switch res.Kind {
	case pkgmgr.KindOK:
		return nil
	case pkgmgr.KindUnsupported:
		return fmt.Errorf("%w: install these packages manually: %s",
			step.ErrUnsupported, strings.Join(res.Packages, ", "))
	default:
		return res.Err()
	}
}

// PrintReport renders the per-step results and summary of a run.
func PrintReport(report *models.RunReport) {
	if len(report.Results) > 0 {
		fmt.Println()
		for _, res := range report.Results {
			line := fmt.Sprintf("  %-24s %s", res.StepID, res.Outcome)
			if res.Error != "" {
				line += fmt.Sprintf("  (%s)", res.Error)
			}
			fmt.Println(line)
		}
	}

	counts := report.Counts()
	var parts []string
	for _, outcome := range []models.Outcome{
		models.OutcomeApplied,
		models.OutcomeAlreadyApplied,
		models.OutcomeNotApplied,
		models.OutcomeReverted,
		models.OutcomeRolledBack,
		models.OutcomeSkipped,
		models.OutcomeFailed,
	} {
		if n := counts[outcome]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, outcome))
		}
	}

	fmt.Printf("\nFix %q: %s", report.FixName, report.Outcome)
	if len(parts) > 0 {
		fmt.Printf(" (%s)", strings.Join(parts, ", "))
	}
	fmt.Println()
}
