package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"igstories/pkg/config"
	"igstories/pkg/models"
)

var testItem = models.ContentItem{ID: "3001_528817151", MediaKind: models.MediaVideo, PrimaryURL: "https://cdn.test/v.mp4"}

func TestManager(t *testing.T) {
	tempDir := t.TempDir()

	manager, err := NewManager(config.OutputConfig{BaseDirectory: tempDir, CreateUserFolders: true})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	if manager.DownloadedCount() != 0 {
		t.Error("Expected initial download count to be 0")
	}
	if manager.IsDownloaded("NASA", testItem) {
		t.Error("Expected IsDownloaded to return false for non-existent file")
	}

	testData := []byte("test video data")
	path, err := manager.Save("NASA", testItem, bytes.NewReader(testData))
	if err != nil {
		t.Fatalf("Failed to save media: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "nasa", "3001_528817151.mp4")
	if path != expectedPath {
		t.Errorf("Expected path %s, got %s", expectedPath, path)
	}

	content, err := os.ReadFile(expectedPath)
	if err != nil {
		t.Fatalf("Failed to read saved file: %v", err)
	}
	if !bytes.Equal(content, testData) {
		t.Error("File content doesn't match")
	}
	if _, err := os.Stat(expectedPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file should not remain")
	}

	if !manager.IsDownloaded("nasa", testItem) {
		t.Error("Expected IsDownloaded to return true after saving")
	}
	if manager.DownloadedCount() != 1 {
		t.Errorf("Expected download count to be 1, got %d", manager.DownloadedCount())
	}
}

func TestManagerScansExistingFiles(t *testing.T) {
	tempDir := t.TempDir()
	accountDir := filepath.Join(tempDir, "nasa")
	if err := os.MkdirAll(accountDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"1.jpg", "2.mp4", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(accountDir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	manager, err := NewManager(config.OutputConfig{BaseDirectory: tempDir, CreateUserFolders: true})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	if manager.DownloadedCount() != 2 {
		t.Errorf("Expected 2 existing media files, got %d", manager.DownloadedCount())
	}
	if !manager.IsDownloaded("nasa", models.ContentItem{ID: "1", MediaKind: models.MediaImage}) {
		t.Error("Expected existing image to be detected")
	}
}

func TestManagerFlatLayoutAndOverwrite(t *testing.T) {
	tempDir := t.TempDir()
	manager, err := NewManager(config.OutputConfig{BaseDirectory: tempDir, OverwriteExisting: true})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	path, err := manager.Save("nasa", testItem, bytes.NewReader([]byte("v1")))
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if filepath.Base(path) != "nasa_3001_528817151.mp4" {
		t.Errorf("Unexpected flat file name %s", filepath.Base(path))
	}
	if manager.IsDownloaded("nasa", testItem) {
		t.Error("Overwrite mode must never report a file as downloaded")
	}
}

func TestManagerSanitizesPathElements(t *testing.T) {
	manager, err := NewManager(config.OutputConfig{BaseDirectory: t.TempDir(), CreateUserFolders: true})
	if err != nil {
		t.Fatal(err)
	}

	path := manager.Path("../evil", models.ContentItem{ID: "../../etc/passwd", MediaKind: models.MediaImage})
	rel, err := filepath.Rel(manager.OutputDir(), path)
	if err != nil || filepath.IsAbs(rel) || rel[:2] == ".." {
		t.Errorf("Path %s escapes the output directory", path)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("stream broken") }

func TestManagerSaveFailureLeavesNoFile(t *testing.T) {
	manager, err := NewManager(config.OutputConfig{BaseDirectory: t.TempDir(), CreateUserFolders: true})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := manager.Save("nasa", testItem, failingReader{}); err == nil {
		t.Fatal("Expected save to fail")
	}
	path := manager.Path("nasa", testItem)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("No media file may exist after a failed save")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file should be removed")
	}
}
