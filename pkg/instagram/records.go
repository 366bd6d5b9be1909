package instagram

import (
	"bytes"
	"encoding/json"
)

// FlexibleID accepts ids the platform sends either as strings or numbers
type FlexibleID string

// UnmarshalJSON decodes a quoted or bare id
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}

// String returns the id as text
func (f FlexibleID) String() string {
	return string(f)
}

// ProfileResponse is the body of the web profile endpoint
type ProfileResponse struct {
	Data struct {
		User *ProfileUser `json:"user"`
	} `json:"data"`
	Status       string `json:"status"`
	RequireLogin bool   `json:"require_login"`
	Message      string `json:"message"`
}

// ProfileUser is the account record. IsPrivate defaults to false when absent.
type ProfileUser struct {
	ID              FlexibleID `json:"id"`
	Username        string     `json:"username"`
	FullName        string     `json:"full_name"`
	IsPrivate       bool       `json:"is_private"`
	ProfilePicURL   string     `json:"profile_pic_url"`
	ProfilePicURLHD string     `json:"profile_pic_url_hd"`
}

// AvatarURL prefers the high resolution picture
func (u *ProfileUser) AvatarURL() string {
	if u.ProfilePicURLHD != "" {
		return u.ProfilePicURLHD
	}
	return u.ProfilePicURL
}

// ReelsResponse is the body of the reels feed endpoint. Depending on the
// endpoint version reels arrive keyed by account id or as a list.
type ReelsResponse struct {
	Reels      map[string]Reel `json:"reels"`
	ReelsMedia []Reel          `json:"reels_media"`
	Status     string          `json:"status"`
	Message    string          `json:"message"`
}

// ReelFor returns the reel of accountID, if any
func (r *ReelsResponse) ReelFor(accountID string) (Reel, bool) {
	if reel, ok := r.Reels[accountID]; ok {
		return reel, true
	}
	for _, reel := range r.ReelsMedia {
		if reel.ID.String() == accountID {
			return reel, true
		}
	}
	if len(r.ReelsMedia) == 1 {
		return r.ReelsMedia[0], true
	}
	return Reel{}, false
}

// Reel is the story tray of one account
type Reel struct {
	ID    FlexibleID `json:"id"`
	User  ReelUser   `json:"user"`
	Items []ReelItem `json:"items"`
}

// ReelUser is the owner summary embedded in a reel
type ReelUser struct {
	PK            FlexibleID `json:"pk"`
	Username      string     `json:"username"`
	FullName      string     `json:"full_name"`
	IsPrivate     bool       `json:"is_private"`
	ProfilePicURL string     `json:"profile_pic_url"`
}

// ReelItem is one story. ID falls back to PK when missing and TakenAt
// falls back to the time of parsing.
type ReelItem struct {
	ID             FlexibleID  `json:"id"`
	PK             FlexibleID  `json:"pk"`
	TakenAt        int64       `json:"taken_at"`
	MediaType      int         `json:"media_type"`
	VideoVersions  []Rendition `json:"video_versions"`
	ImageVersions2 struct {
		Candidates []Rendition `json:"candidates"`
	} `json:"image_versions2"`
}

// Rendition is one encoded variant of a media item
type Rendition struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ItemID returns the id of the item, falling back to PK
func (i ReelItem) ItemID() string {
	if i.ID != "" {
		return i.ID.String()
	}
	return i.PK.String()
}

// Raw converts the feed item into renditions ready for selection
func (i ReelItem) Raw() RawMedia {
	return RawMedia{
		ID:      i.ItemID(),
		TakenAt: i.TakenAt,
		Videos:  i.VideoVersions,
		Images:  i.ImageVersions2.Candidates,
	}
}
