package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"igstories/pkg/config"
	"igstories/pkg/models"
)

var mediaExtensions = map[string]bool{".jpg": true, ".mp4": true}

// Manager writes downloaded stories below an output directory and
// remembers which ones are already on disk
type Manager struct {
	outputDir   string
	userFolders bool
	overwrite   bool
	downloaded  map[string]bool
	mu          sync.RWMutex
}

// NewManager creates a new storage manager
func NewManager(cfg config.OutputConfig) (*Manager, error) {
	outputDir := cfg.BaseDirectory
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		outputDir:   outputDir,
		userFolders: cfg.CreateUserFolders,
		overwrite:   cfg.OverwriteExisting,
		downloaded:  make(map[string]bool),
	}

	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// scanExistingFiles records media files already present in the output tree
func (m *Manager) scanExistingFiles() error {
	return filepath.WalkDir(m.outputDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !mediaExtensions[filepath.Ext(path)] {
			return nil
		}
		m.downloaded[path] = true
		return nil
	})
}

// Path returns where item of handle is stored
func (m *Manager) Path(handle string, item models.ContentItem) string {
	name := fmt.Sprintf("%s.%s", sanitize(item.ID), item.Extension())
	if m.userFolders {
		return filepath.Join(m.outputDir, sanitize(strings.ToLower(handle)), name)
	}
	return filepath.Join(m.outputDir, sanitize(strings.ToLower(handle))+"_"+name)
}

// IsDownloaded reports whether item is already on disk. Always false when
// overwriting is enabled.
func (m *Manager) IsDownloaded(handle string, item models.ContentItem) bool {
	if m.overwrite {
		return false
	}
	path := m.Path(handle, item)

	m.mu.RLock()
	known := m.downloaded[path]
	m.mu.RUnlock()
	if known {
		return true
	}

	if _, err := os.Stat(path); err == nil {
		m.mu.Lock()
		m.downloaded[path] = true
		m.mu.Unlock()
		return true
	}
	return false
}

// Save writes r to the location of item through a temporary file and
// returns the final path
func (m *Manager) Save(handle string, item models.ContentItem, r io.Reader) (string, error) {
	filename := m.Path(handle, item)
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return "", fmt.Errorf("failed to create account directory: %w", err)
	}

	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to save media data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.downloaded[filename] = true
	m.mu.Unlock()

	return filename, nil
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// DownloadedCount returns the number of media files known to be on disk
func (m *Manager) DownloadedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.downloaded)
}

// sanitize keeps a path element free of separators and dot segments
func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	s = strings.Trim(s, ".")
	if s == "" {
		return "_"
	}
	return s
}
