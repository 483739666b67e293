// SPDX-License-Identifier: Apache-2.0

package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hwfix-dev/hwfix/internal/core/format"
)

// Backup records one pre-mutation snapshot. When the source did not
// exist before the run, restoring means deleting whatever a step
// created there.
type Backup struct {
	Source     string    `yaml:"source"`
	Snapshot   string    `yaml:"snapshot"`
	Existed    bool      `yaml:"existed"`
	Restored   bool      `yaml:"restored"`
	Discarded  bool      `yaml:"discarded"`
	CapturedAt time.Time `yaml:"captured_at"`
}

type manifest struct {
	RunID   string    `yaml:"run_id"`
	Backups []*Backup `yaml:"backups"`
}

// Store snapshots files and directories before a step mutates them and
// restores them on revert or interrupted runs. All snapshots of a run
// live under one run-scoped directory so an interrupt handler can find
// every outstanding backup.
type Store struct {
	runDir string
	runID  string

	mu      sync.Mutex
	backups map[string]*Backup
	order   []string
}

// NewStore creates the snapshot directory for a run.
func NewStore(backupRoot, runID string) (*Store, error) {
	runDir := filepath.Join(backupRoot, runID)
	if err := os.MkdirAll(runDir, 0700); err != nil {
		return nil, fmt.Errorf("error creating backup directory: %w", err)
	}

	s := &Store{
		runDir:  runDir,
		runID:   runID,
		backups: make(map[string]*Backup),
	}
	if err := s.writeManifest(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open loads the store of a previous (possibly interrupted) run from
// its on-disk manifest.
func Open(backupRoot, runID string) (*Store, error) {
	runDir := filepath.Join(backupRoot, runID)

	var m manifest
	if err := format.ParseFile(filepath.Join(runDir, "manifest.yaml"), &m); err != nil {
		return nil, fmt.Errorf("error loading backup manifest: %w", err)
	}

	s := &Store{
		runDir:  runDir,
		runID:   runID,
		backups: make(map[string]*Backup),
	}
	for _, b := range m.Backups {
		s.backups[b.Source] = b
		s.order = append(s.order, b.Source)
	}
	return s, nil
}

// RunDir returns the directory holding this run's snapshots.
func (s *Store) RunDir() string {
	return s.runDir
}

// RunID returns the run the snapshots belong to.
func (s *Store) RunID() string {
	return s.runID
}

// Runs lists the run IDs that still have a snapshot directory under
// backupRoot. A missing root means no runs.
func Runs(backupRoot string) ([]string, error) {
	entries, err := os.ReadDir(backupRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading backup root: %w", err)
	}

	var runs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(backupRoot, entry.Name(), "manifest.yaml")); err == nil {
			runs = append(runs, entry.Name())
		}
	}
	return runs, nil
}

// Snapshot captures the current state of a path. It is idempotent per
// path per run: a second request returns the original snapshot so the
// pre-run state is what a restore brings back.
func (s *Store) Snapshot(path string) (*Backup, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("error resolving path %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.backups[abs]; ok {
		return existing, nil
	}

	b := &Backup{
		Source:     abs,
		CapturedAt: time.Now(),
	}

	info, err := os.Stat(abs)
	switch {
	case os.IsNotExist(err):
		b.Existed = false
	case err != nil:
		return nil, fmt.Errorf("error inspecting %s: %w", abs, err)
	default:
		b.Existed = true
		b.Snapshot = filepath.Join(s.runDir, fmt.Sprintf("%03d-%s", len(s.order), filepath.Base(abs)))
		if info.IsDir() {
			if err := copyTree(abs, b.Snapshot); err != nil {
				return nil, fmt.Errorf("error snapshotting directory %s: %w", abs, err)
			}
		} else {
			if err := copyFile(abs, b.Snapshot, info.Mode()); err != nil {
				return nil, fmt.Errorf("error snapshotting %s: %w", abs, err)
			}
		}
	}

	s.backups[abs] = b
	s.order = append(s.order, abs)
	if err := s.writeManifest(); err != nil {
		return nil, err
	}

	return b, nil
}

// Restore puts the pre-run content back, overwriting whatever a step
// wrote. A backup of a previously missing path removes the path.
func (s *Store) Restore(b *Backup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreLocked(b)
}

func (s *Store) restoreLocked(b *Backup) error {
	if b.Restored || b.Discarded {
		return nil
	}

	if !b.Existed {
		if err := os.RemoveAll(b.Source); err != nil {
			return fmt.Errorf("error removing %s: %w", b.Source, err)
		}
	} else {
		info, err := os.Stat(b.Snapshot)
		if err != nil {
			return fmt.Errorf("error reading snapshot for %s: %w", b.Source, err)
		}
		if err := os.RemoveAll(b.Source); err != nil {
			return fmt.Errorf("error clearing %s before restore: %w", b.Source, err)
		}
		if info.IsDir() {
			if err := copyTree(b.Snapshot, b.Source); err != nil {
				return fmt.Errorf("error restoring directory %s: %w", b.Source, err)
			}
		} else {
			if err := copyFile(b.Snapshot, b.Source, info.Mode()); err != nil {
				return fmt.Errorf("error restoring %s: %w", b.Source, err)
			}
		}
	}

	b.Restored = true
	return s.writeManifest()
}

// Discard marks a backup as committed. Once every backup of the run is
// discarded or restored the run directory is removed.
func (s *Store) Discard(b *Backup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Discarded {
		return nil
	}
	b.Discarded = true
	if b.Snapshot != "" {
		if err := os.RemoveAll(b.Snapshot); err != nil {
			return fmt.Errorf("error removing snapshot for %s: %w", b.Source, err)
		}
	}
	if err := s.writeManifest(); err != nil {
		return err
	}
	return s.cleanupIfSettledLocked()
}

// Outstanding returns backups that have been neither restored nor
// discarded, in snapshot order.
func (s *Store) Outstanding() []*Backup {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Backup
	for _, src := range s.order {
		b := s.backups[src]
		if !b.Restored && !b.Discarded {
			out = append(out, b)
		}
	}
	return out
}

// RestoreOutstanding restores every outstanding backup in reverse
// snapshot order. Used by the interrupt handler and by rollback.
// Failures are collected so every backup gets an attempt.
func (s *Store) RestoreOutstanding() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for i := len(s.order) - 1; i >= 0; i-- {
		b := s.backups[s.order[i]]
		if b.Restored || b.Discarded {
			continue
		}
		if err := s.restoreLocked(b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return s.cleanupIfSettledLocked()
}

// Commit discards every outstanding backup, deleting the run directory
// once the user's changes are final.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, src := range s.order {
		b := s.backups[src]
		if b.Restored || b.Discarded {
			continue
		}
		b.Discarded = true
		if b.Snapshot != "" {
			if err := os.RemoveAll(b.Snapshot); err != nil {
				return fmt.Errorf("error removing snapshot for %s: %w", b.Source, err)
			}
		}
	}
	if err := s.writeManifest(); err != nil {
		return err
	}
	return s.cleanupIfSettledLocked()
}

func (s *Store) cleanupIfSettledLocked() error {
	for _, b := range s.backups {
		if !b.Restored && !b.Discarded {
			return nil
		}
	}
	return os.RemoveAll(s.runDir)
}

func (s *Store) writeManifest() error {
	m := manifest{RunID: s.runID}
	for _, src := range s.order {
		m.Backups = append(m.Backups, s.backups[src])
	}
	if err := format.WriteYAML(filepath.Join(s.runDir, "manifest.yaml"), m); err != nil {
		return fmt.Errorf("error writing backup manifest: %w", err)
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(path, target, info.Mode())
	})
}
