// Package metadata writes and reads the JSON sidecar stored next to each
// downloaded story.
package metadata

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"igstories/pkg/models"
)

// Suffix is appended to a story path to name its sidecar
const Suffix = ".json"

// StoryMetadata describes one downloaded story
type StoryMetadata struct {
	ID           string              `json:"id"`
	Handle       string              `json:"handle"`
	Account      *models.AccountInfo `json:"account,omitempty"`
	MediaKind    models.MediaKind    `json:"media_kind"`
	URL          string              `json:"url"`
	ThumbnailURL string              `json:"thumbnail_url,omitempty"`
	FileSize     int64               `json:"file_size"`
	Source       string              `json:"source,omitempty"`
	TakenAt      time.Time           `json:"taken_at"`
	DownloadedAt time.Time           `json:"downloaded_at"`
}

// FromStory builds the sidecar of item. account may be nil.
func FromStory(handle string, item models.ContentItem, account *models.AccountInfo, source string, size int64, now time.Time) *StoryMetadata {
	meta := &StoryMetadata{
		ID:           item.ID,
		Handle:       handle,
		MediaKind:    item.MediaKind,
		URL:          item.PrimaryURL,
		ThumbnailURL: item.ThumbnailURL,
		FileSize:     size,
		Source:       source,
		TakenAt:      time.Unix(item.CapturedAt, 0).UTC(),
		DownloadedAt: now.UTC(),
		Account:      account,
	}
	return meta
}

// Save writes the metadata next to the story at mediaPath
func (m *StoryMetadata) Save(mediaPath string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(mediaPath+Suffix, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// Load reads the metadata of the story at mediaPath
func Load(mediaPath string) (*StoryMetadata, error) {
	data, err := os.ReadFile(mediaPath + Suffix)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var meta StoryMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &meta, nil
}

// Exists checks if metadata exists for the story at mediaPath
func Exists(mediaPath string) bool {
	_, err := os.Stat(mediaPath + Suffix)
	return err == nil
}

// CleanOrphaned removes sidecars whose story file is gone and returns how
// many were removed
func CleanOrphaned(directory string) (int, error) {
	removed := 0
	err := filepath.WalkDir(directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, Suffix) {
			return nil
		}

		mediaPath := strings.TrimSuffix(path, Suffix)
		if _, err := os.Stat(mediaPath); os.IsNotExist(err) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove orphaned metadata %s: %w", path, err)
			}
			removed++
		}
		return nil
	})
	return removed, err
}
