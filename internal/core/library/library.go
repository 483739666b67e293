// SPDX-License-Identifier: Apache-2.0

package library

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

//go:embed fixes/* templates/*
var embeddedFiles embed.FS

// SyncConfig stores where to fetch library updates from.
type SyncConfig struct {
	// Base URL for the remote fix library
	RemoteURL string `yaml:"remote_url"`

	// Whether to attempt a remote fetch before falling back to the
	// embedded copies
	UseRemote bool `yaml:"use_remote"`

	// Timeout for remote fetches in seconds
	Timeout int `yaml:"timeout"`
}

// NewSyncConfig creates the default sync configuration.
func NewSyncConfig() SyncConfig {
	return SyncConfig{
		RemoteURL: "https://raw.githubusercontent.com/hwfix-dev/hwfix-library/main",
		UseRemote: true,
		Timeout:   5,
	}
}

// Manager seeds and refreshes a fix library directory from the
// embedded defaults or a remote copy.
type Manager struct {
	config SyncConfig
}

// NewManager creates a library manager.
func NewManager(config SyncConfig) *Manager {
	return &Manager{config: config}
}

// Sync populates the library at libraryPath with fix definitions and
// templates. Remote content is preferred when enabled and reachable;
// the embedded copies are the fallback. Returns whether remote content
// was used.
func (m *Manager) Sync(libraryPath string, useRemote bool) (bool, error) {
	usedRemote := false

	if useRemote && m.config.UseRemote {
		fmt.Println("Attempting to fetch latest fix library from remote...")
		ok, err := m.syncRemote(libraryPath)
		if err != nil {
			fmt.Printf("Warning: failed to fetch remote library: %v\n", err)
			fmt.Println("Falling back to embedded fix library...")
		} else if ok {
			fmt.Println("Successfully fetched remote fix library.")
			usedRemote = true
		}
	}

	if !usedRemote {
		if err := m.syncEmbedded(libraryPath); err != nil {
			return false, fmt.Errorf("error copying embedded fix library: %w", err)
		}
	}

	return usedRemote, nil
}

// syncEmbedded copies the embedded fixes and templates into the
// library directory, overwriting what is already there.
func (m *Manager) syncEmbedded(libraryPath string) error {
	return fs.WalkDir(embeddedFiles, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(libraryPath, path)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		data, err := embeddedFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("error reading embedded %s: %w", path, err)
		}
		return os.WriteFile(target, data, 0644)
	})
}

// syncRemote mirrors the embedded file list from the remote library.
// Any missing remote file aborts the remote sync so the library never
// ends up half-updated.
func (m *Manager) syncRemote(libraryPath string) (bool, error) {
	client := &http.Client{Timeout: time.Duration(m.config.Timeout) * time.Second}

	var files []string
	err := fs.WalkDir(embeddedFiles, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	fetched := make(map[string][]byte, len(files))
	for _, file := range files {
		url := m.config.RemoteURL + "/" + filepath.ToSlash(file)
		resp, err := client.Get(url)
		if err != nil {
			return false, fmt.Errorf("error fetching %s: %w", url, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return false, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return false, fmt.Errorf("error reading %s: %w", url, err)
		}
		fetched[file] = data
	}

	for file, data := range fetched {
		target := filepath.Join(libraryPath, file)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return false, err
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return false, err
		}
	}

	return true, nil
}

// Seeded reports whether the library directory has been populated.
func Seeded(libraryPath string) bool {
	info, err := os.Stat(filepath.Join(libraryPath, "fixes"))
	return err == nil && info.IsDir()
}
