// SPDX-License-Identifier: Apache-2.0

package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hwfix-dev/hwfix/internal/backup"
	"github.com/hwfix-dev/hwfix/internal/core/config"
	"github.com/hwfix-dev/hwfix/internal/core/models"
	"github.com/hwfix-dev/hwfix/internal/orchestrator"
	"github.com/hwfix-dev/hwfix/internal/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type world struct {
	cfg     *config.Config
	prober  *probe.Prober
	sysRoot string
	workDir string
}

// newWorld builds an isolated home, fake system root and config for an
// orchestrator run.
func newWorld(t *testing.T) *world {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HWFIX_HOME", home)

	sysRoot := t.TempDir()
	writeWorldFile(t, sysRoot, "etc/os-release", "ID=ubuntu\nID_LIKE=debian\nVERSION_ID=\"24.04\"\n")
	writeWorldFile(t, sysRoot, "proc/sys/kernel/osrelease", "6.8.0-45-generic\n")
	require.NoError(t, os.MkdirAll(filepath.Join(sysRoot, "sys/bus/acpi/devices/OVTI02C1:00"), 0755))

	cfg := config.NewDefaultConfig()
	return &world{
		cfg:     cfg,
		prober:  probe.NewWithRoot(sysRoot),
		sysRoot: sysRoot,
		workDir: t.TempDir(),
	}
}

func writeWorldFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	path := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func (w *world) fileFix(target string) *models.Fix {
	return &models.Fix{
		Name:      "camera-conf",
		Condition: "facts.has_camera",
		Facts: map[string]models.FactSpec{
			"has_camera": {Probe: "acpi", ID: "OVTI02C1"},
		},
		Steps: []models.StepSpec{
			{
				ID:   "write-conf",
				Type: "file",
				Params: map[string]interface{}{
					"target":      target,
					"content":     "enabled = true\n",
					"create_dirs": true,
				},
			},
		},
	}
}

func run(t *testing.T, w *world, fix *models.Fix, options models.RunOptions) (*models.RunReport, error) {
	t.Helper()
	return orchestrator.New(w.cfg, options).WithProber(w.prober).Run(context.Background(), fix)
}

func TestApplyWritesStampAndReport(t *testing.T) {
	w := newWorld(t)
	target := filepath.Join(w.workDir, "camera.conf")

	report, err := run(t, w, w.fileFix(target), models.RunOptions{Mode: models.ModeApply})
	require.NoError(t, err)

	assert.Equal(t, models.RunSuccess, report.Outcome)
	require.Len(t, report.Results, 1)
	assert.Equal(t, models.OutcomeApplied, report.Results[0].Outcome)
	assert.Equal(t, "debian", report.System.DistroFamily)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "enabled = true\n", string(content))

	// The applied stamp gates a later revert
	stamp, found, err := config.ReadStamp("camera-conf")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, report.RunID, stamp.RunID)

	// The run report is persisted for later inspection
	assert.FileExists(t, filepath.Join(w.cfg.ReportsDir, report.RunID+".yaml"))

	// Snapshots stay on disk until the fix is reverted
	assert.Equal(t, report.RunID, stamp.BackupRunID)
	assert.DirExists(t, filepath.Join(w.cfg.BackupRoot, stamp.BackupRunID))
}

func TestApplyIsIdempotent(t *testing.T) {
	w := newWorld(t)
	target := filepath.Join(w.workDir, "camera.conf")
	fix := w.fileFix(target)

	_, err := run(t, w, fix, models.RunOptions{Mode: models.ModeApply})
	require.NoError(t, err)

	report, err := run(t, w, w.fileFix(target), models.RunOptions{Mode: models.ModeApply})
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, report.Outcome)
	assert.Equal(t, models.OutcomeAlreadyApplied, report.Results[0].Outcome)
}

func TestApplySkipsWhenConditionDoesNotMatch(t *testing.T) {
	w := newWorld(t)
	target := filepath.Join(w.workDir, "camera.conf")

	fix := w.fileFix(target)
	fix.Condition = "facts.has_amp"
	fix.Facts["has_amp"] = models.FactSpec{Probe: "acpi", ID: "MX98390"}

	report, err := run(t, w, fix, models.RunOptions{Mode: models.ModeApply})
	require.NoError(t, err)

	assert.Equal(t, models.RunSuccess, report.Outcome)
	assert.Empty(t, report.Results)
	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRevertRequiresStamp(t *testing.T) {
	w := newWorld(t)
	target := filepath.Join(w.workDir, "camera.conf")

	_, err := run(t, w, w.fileFix(target), models.RunOptions{Mode: models.ModeRevert})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not recorded as applied")
}

func TestApplyThenRevert(t *testing.T) {
	w := newWorld(t)
	target := filepath.Join(w.workDir, "camera.conf")

	_, err := run(t, w, w.fileFix(target), models.RunOptions{Mode: models.ModeApply})
	require.NoError(t, err)

	report, err := run(t, w, w.fileFix(target), models.RunOptions{Mode: models.ModeRevert})
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, report.Outcome)
	assert.Equal(t, models.OutcomeReverted, report.Results[0].Outcome)

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))

	_, found, err := config.ReadStamp("camera-conf")
	require.NoError(t, err)
	assert.False(t, found)

	// Once the fix is gone nothing lingers under the backup root
	entries, err := os.ReadDir(w.cfg.BackupRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRevertRestoresPreexistingContent(t *testing.T) {
	w := newWorld(t)
	target := filepath.Join(w.workDir, "camera.conf")

	original := "ccm: identity\n"
	require.NoError(t, os.WriteFile(target, []byte(original), 0644))

	_, err := run(t, w, w.fileFix(target), models.RunOptions{Mode: models.ModeApply})
	require.NoError(t, err)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "enabled = true\n", string(content))

	report, err := run(t, w, w.fileFix(target), models.RunOptions{Mode: models.ModeRevert})
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, report.Outcome)

	// Byte-identical to what was there before apply
	content, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, original, string(content))

	entries, err := os.ReadDir(w.cfg.BackupRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApplySweepsAbandonedRuns(t *testing.T) {
	w := newWorld(t)

	// Simulate a run killed mid-step: a snapshot exists, the file was
	// mutated afterwards, and no stamp ever referenced the run.
	casualty := filepath.Join(w.workDir, "modprobe.conf")
	require.NoError(t, os.WriteFile(casualty, []byte("options ov02c10\n"), 0644))
	stale, err := backup.NewStore(w.cfg.BackupRoot, "interrupted-run")
	require.NoError(t, err)
	_, err = stale.Snapshot(casualty)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(casualty, []byte("garbage\n"), 0644))

	target := filepath.Join(w.workDir, "camera.conf")
	_, err = run(t, w, w.fileFix(target), models.RunOptions{Mode: models.ModeApply})
	require.NoError(t, err)

	content, err := os.ReadFile(casualty)
	require.NoError(t, err)
	assert.Equal(t, "options ov02c10\n", string(content))
	assert.NoDirExists(t, filepath.Join(w.cfg.BackupRoot, "interrupted-run"))
}

func TestStatusDoesNotMutateOrPersist(t *testing.T) {
	w := newWorld(t)
	target := filepath.Join(w.workDir, "camera.conf")

	report, err := run(t, w, w.fileFix(target), models.RunOptions{Mode: models.ModeStatusOnly})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeNotApplied, report.Results[0].Outcome)
	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
	assert.NoFileExists(t, filepath.Join(w.cfg.ReportsDir, report.RunID+".yaml"))

	_, found, err := config.ReadStamp("camera-conf")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDryRunLeavesNoTrace(t *testing.T) {
	w := newWorld(t)
	target := filepath.Join(w.workDir, "camera.conf")

	report, err := run(t, w, w.fileFix(target), models.RunOptions{Mode: models.ModeApply, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSkipped, report.Results[0].Outcome)
	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))

	_, found, err := config.ReadStamp("camera-conf")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExtraParamsReachStepParams(t *testing.T) {
	w := newWorld(t)
	target := filepath.Join(w.workDir, "camera.conf")

	fix := w.fileFix(target)
	fix.Steps[0].Params["target"] = "{{.conf_target}}"

	report, err := run(t, w, fix, models.RunOptions{
		Mode:        models.ModeApply,
		ExtraParams: map[string]interface{}{"conf_target": target},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, report.Outcome)
	assert.FileExists(t, target)
}
