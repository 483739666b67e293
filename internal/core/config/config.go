// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hwfix-dev/hwfix/internal/core/format"
)

// Constants for default paths
const (
	DefaultConfigDir      = ".hwfix"
	DefaultGlobalLibrary  = "~/.hwfix/library"
	DefaultConfigFileName = "config.yaml"
	DefaultFixesDirName   = "fixes"
	DefaultTemplatesDir   = "templates"
	DefaultBackupDirName  = "backups"
	DefaultReportsDirName = "reports"
	DefaultStampDirName   = "applied"
)

// Config holds the application configuration.
type Config struct {
	// Relative directory names inside a library or project
	FixesDir     string `yaml:"fixes_dir"`
	TemplatesDir string `yaml:"templates_dir"`

	// Library-related configuration
	LibraryPath string `yaml:"library_path"`
	UseGlobal   bool   `yaml:"use_global"`
	UseLocal    bool   `yaml:"use_local"`
	GlobalFirst bool   `yaml:"global_first"`

	// Where pre-mutation snapshots and run reports go
	BackupRoot string `yaml:"backup_root"`
	ReportsDir string `yaml:"reports_dir"`
}

// Stamp records that a fix was applied, gating revert availability.
// One stamp file per fix lives under the stamp directory. BackupRunID
// names the snapshot directory holding the pre-apply file contents; it
// is kept until the fix is reverted.
type Stamp struct {
	FixName       string `yaml:"fix_name"`
	Version       string `yaml:"version"`
	RunID         string `yaml:"run_id"`
	AppliedAt     string `yaml:"applied_at"`
	KernelVersion string `yaml:"kernel_version,omitempty"`
	BackupRunID   string `yaml:"backup_run_id,omitempty"`
}

// NewDefaultConfig creates a default configuration.
func NewDefaultConfig() *Config {
	home := hwfixHome()
	return &Config{
		FixesDir:     DefaultFixesDirName,
		TemplatesDir: DefaultTemplatesDir,
		LibraryPath:  ExpandPathWithTilde(DefaultGlobalLibrary),
		UseGlobal:    true,
		UseLocal:     true,
		GlobalFirst:  false,
		BackupRoot:   filepath.Join(home, DefaultConfigDir, DefaultBackupDirName),
		ReportsDir:   filepath.Join(home, DefaultConfigDir, DefaultReportsDirName),
	}
}

// ExpandPathWithTilde expands ~ to the user home directory. It
// respects the HWFIX_HOME environment variable for testing.
func ExpandPathWithTilde(path string) string {
	if path == "~" {
		return hwfixHome()
	}
	if strings.HasPrefix(path, "~/") {
		home := hwfixHome()
		if home == "" {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func hwfixHome() string {
	if custom := os.Getenv("HWFIX_HOME"); custom != "" {
		return custom
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

// GlobalConfigFilePath returns the path of the global config file.
func GlobalConfigFilePath() string {
	return filepath.Join(hwfixHome(), DefaultConfigDir, DefaultConfigFileName)
}

// LoadConfig loads configuration: defaults, overlaid by the global
// config file when present, overlaid by the project config when a
// project directory is given. Missing files are not errors.
func LoadConfig(projectDir string) (*Config, error) {
	cfg := NewDefaultConfig()

	if err := mergeConfigFile(cfg, GlobalConfigFilePath()); err != nil {
		return nil, err
	}

	if projectDir != "" {
		projectConfig := filepath.Join(projectDir, DefaultConfigDir, DefaultConfigFileName)
		if err := mergeConfigFile(cfg, projectConfig); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func mergeConfigFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := format.ParseFile(path, cfg); err != nil {
		return fmt.Errorf("error loading config %s: %w", path, err)
	}
	return nil
}

// FixPaths returns the ordered directories searched for fix
// definitions.
func (c *Config) FixPaths(projectDir string) []string {
	local := filepath.Join(projectDir, DefaultConfigDir, c.FixesDir)
	global := filepath.Join(c.LibraryPath, c.FixesDir)
	return orderedPaths(c, local, global)
}

// TemplatePaths returns the ordered directories searched for file
// templates.
func (c *Config) TemplatePaths(projectDir string) []string {
	local := filepath.Join(projectDir, DefaultConfigDir, c.TemplatesDir)
	global := filepath.Join(c.LibraryPath, c.TemplatesDir)
	return orderedPaths(c, local, global)
}

func orderedPaths(c *Config, local, global string) []string {
	var paths []string
	switch {
	case c.UseLocal && c.UseGlobal && c.GlobalFirst:
		paths = []string{global, local}
	case c.UseLocal && c.UseGlobal:
		paths = []string{local, global}
	case c.UseLocal:
		paths = []string{local}
	case c.UseGlobal:
		paths = []string{global}
	}
	return paths
}

// StampDir returns the directory holding per-fix applied stamps.
func StampDir() string {
	return filepath.Join(hwfixHome(), DefaultConfigDir, DefaultStampDirName)
}

func stampPath(fixName string) string {
	return filepath.Join(StampDir(), fixName+".yaml")
}

// WriteStamp records that a fix has been applied. AppliedAt is filled
// in when the caller left it empty.
func WriteStamp(stamp *Stamp) error {
	if err := os.MkdirAll(StampDir(), 0755); err != nil {
		return fmt.Errorf("error creating stamp directory: %w", err)
	}
	if stamp.AppliedAt == "" {
		stamp.AppliedAt = time.Now().Format(time.RFC3339)
	}
	return format.WriteYAML(stampPath(stamp.FixName), stamp)
}

// ReadStamp loads the stamp for a fix, if one exists.
func ReadStamp(fixName string) (*Stamp, bool, error) {
	path := stampPath(fixName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, false, nil
	}
	var stamp Stamp
	if err := format.ParseFile(path, &stamp); err != nil {
		return nil, false, fmt.Errorf("error reading stamp for %s: %w", fixName, err)
	}
	return &stamp, true, nil
}

// StampedBackupRuns returns the backup run IDs still referenced by an
// applied stamp. Snapshot directories outside this set were left by
// interrupted runs and are safe to restore and remove.
func StampedBackupRuns() (map[string]bool, error) {
	entries, err := os.ReadDir(StampDir())
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading stamp directory: %w", err)
	}

	runs := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		var stamp Stamp
		if err := format.ParseFile(filepath.Join(StampDir(), entry.Name()), &stamp); err != nil {
			continue
		}
		if stamp.BackupRunID != "" {
			runs[stamp.BackupRunID] = true
		}
	}
	return runs, nil
}

// RemoveStamp deletes the applied stamp after a successful revert.
func RemoveStamp(fixName string) error {
	if err := os.Remove(stampPath(fixName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing stamp for %s: %w", fixName, err)
	}
	return nil
}
