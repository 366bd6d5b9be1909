package models

import errs "igstories/pkg/errors"

// MediaKind distinguishes video stories from image stories
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaImage MediaKind = "image"
)

// ContentItem is one story. Produced by a response parser and never mutated.
type ContentItem struct {
	ID           string    `json:"id"`
	MediaKind    MediaKind `json:"media_kind"`
	PrimaryURL   string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	CapturedAt   int64     `json:"captured_at"`
}

// Extension returns the file extension matching the media kind
func (c ContentItem) Extension() string {
	if c.MediaKind == MediaVideo {
		return "mp4"
	}
	return "jpg"
}

// AccountInfo is the account metadata a strategy could resolve
type AccountInfo struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	IsPrivate   bool   `json:"is_private"`
	AvatarURL   string `json:"avatar_url"`
}

// AcquisitionResult is what every strategy and the orchestrator return.
// Err is nil iff Success. A successful result may carry zero items.
type AcquisitionResult struct {
	Success bool          `json:"success"`
	Items   []ContentItem `json:"items"`
	Account *AccountInfo  `json:"account,omitempty"`
	Err     *errs.Error   `json:"-"`
	Source  string        `json:"source"`
}

// Failed builds an unsuccessful result
func Failed(source string, err *errs.Error) AcquisitionResult {
	return AcquisitionResult{Success: false, Err: err, Source: source}
}

// Succeeded builds a successful result
func Succeeded(source string, items []ContentItem, account *AccountInfo) AcquisitionResult {
	if items == nil {
		items = []ContentItem{}
	}
	return AcquisitionResult{Success: true, Items: items, Account: account, Source: source}
}

// ErrorMessage returns the user-facing error text, or "" on success
func (r AcquisitionResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Message
}

// DownloadDescriptor remembers where a completed download came from so a
// repeated request can skip resolution
type DownloadDescriptor struct {
	Handle    string    `json:"handle"`
	ContentID string    `json:"content_id"`
	URL       string    `json:"url"`
	MediaKind MediaKind `json:"media_kind"`
}

// DownloadResult is the outcome of downloading one story
type DownloadResult struct {
	Success     bool        `json:"success"`
	Item        ContentItem `json:"item"`
	Data        []byte      `json:"-"`
	ContentType string      `json:"content_type,omitempty"`
	Filename    string      `json:"filename,omitempty"`
	Err         *errs.Error `json:"-"`
}
