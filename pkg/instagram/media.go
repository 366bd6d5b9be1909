package instagram

import (
	"strings"
	"time"

	"igstories/pkg/models"
)

// RawMedia is one story as delivered by any source, before selection
type RawMedia struct {
	ID      string
	TakenAt int64
	Videos  []Rendition
	Images  []Rendition
}

// widest returns the rendition with the greatest width among those with a URL
func widest(renditions []Rendition) (Rendition, bool) {
	var (
		best  Rendition
		found bool
	)
	for _, r := range renditions {
		if r.URL == "" {
			continue
		}
		if !found || r.Width > best.Width {
			best = r
			found = true
		}
	}
	return best, found
}

// SelectMedia picks the primary and thumbnail URLs of raw. Videos win over
// images; the widest rendition wins within a kind. Items with no usable
// rendition are reported as not ok.
func SelectMedia(raw RawMedia, now time.Time) (models.ContentItem, bool) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return models.ContentItem{}, false
	}

	takenAt := raw.TakenAt
	if takenAt <= 0 {
		takenAt = now.Unix()
	}

	if video, ok := widest(raw.Videos); ok {
		item := models.ContentItem{
			ID:         id,
			MediaKind:  models.MediaVideo,
			PrimaryURL: video.URL,
			CapturedAt: takenAt,
		}
		if thumb, ok := widest(raw.Images); ok {
			item.ThumbnailURL = thumb.URL
		}
		return item, true
	}

	if image, ok := widest(raw.Images); ok {
		return models.ContentItem{
			ID:         id,
			MediaKind:  models.MediaImage,
			PrimaryURL: image.URL,
			CapturedAt: takenAt,
		}, true
	}

	return models.ContentItem{}, false
}

// NormalizeMedia applies SelectMedia to every raw item, dropping the unusable ones
func NormalizeMedia(raw []RawMedia, now time.Time) []models.ContentItem {
	items := make([]models.ContentItem, 0, len(raw))
	for _, r := range raw {
		if item, ok := SelectMedia(r, now); ok {
			items = append(items, item)
		}
	}
	return items
}

// NormalizeReelItems converts feed items into ContentItems
func NormalizeReelItems(feed []ReelItem, now time.Time) []models.ContentItem {
	raw := make([]RawMedia, len(feed))
	for i, item := range feed {
		raw[i] = item.Raw()
	}
	return NormalizeMedia(raw, now)
}

// AccountFromReel builds account metadata from the owner embedded in a reel
func AccountFromReel(reel Reel, handle string) *models.AccountInfo {
	id := reel.User.PK.String()
	if id == "" {
		id = reel.ID.String()
	}
	username := reel.User.Username
	if username == "" {
		username = handle
	}
	return &models.AccountInfo{
		ID:          id,
		Handle:      username,
		DisplayName: reel.User.FullName,
		IsPrivate:   reel.User.IsPrivate,
		AvatarURL:   reel.User.ProfilePicURL,
	}
}

// AccountFromProfile builds account metadata from a profile record
func AccountFromProfile(u *ProfileUser) *models.AccountInfo {
	return &models.AccountInfo{
		ID:          u.ID.String(),
		Handle:      u.Username,
		DisplayName: u.FullName,
		IsPrivate:   u.IsPrivate,
		AvatarURL:   u.AvatarURL(),
	}
}
