package instagram

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// ProfileEndpoint resolves a handle to its account record
	ProfileEndpoint = "/api/v1/users/web_profile_info/"

	// ReelsMediaEndpoint returns the active stories of one or more accounts
	ReelsMediaEndpoint = "/api/v1/feed/reels_media/"

	// MaxHandleLength is the longest handle the platform accepts
	MaxHandleLength = 30
)

// ProfileURL constructs the URL for fetching an account record by handle
func ProfileURL(baseURL, handle string) string {
	params := url.Values{}
	params.Set("username", handle)

	return fmt.Sprintf("%s%s?%s", strings.TrimRight(baseURL, "/"), ProfileEndpoint, params.Encode())
}

// ReelsMediaURL constructs the URL of the story feed for an account id
func ReelsMediaURL(baseURL, accountID string) string {
	params := url.Values{}
	params.Set("reel_ids", accountID)

	return fmt.Sprintf("%s%s?%s", strings.TrimRight(baseURL, "/"), ReelsMediaEndpoint, params.Encode())
}

// ProfilePageURL constructs the public HTML profile URL for a handle
func ProfilePageURL(baseURL, handle string) string {
	if handle == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/", strings.TrimRight(baseURL, "/"), handle)
}

// IsValidHandle checks if a handle is valid according to platform rules
func IsValidHandle(handle string) bool {
	if handle == "" || len(handle) > MaxHandleLength {
		return false
	}

	// letters, numbers, periods and underscores only
	for _, char := range handle {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeHandle strips a leading @, a profile URL prefix and trailing
// slashes or spaces
func SanitizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	for _, prefix := range []string{"https://www.instagram.com/", "http://www.instagram.com/", "https://instagram.com/", "instagram.com/"} {
		if len(handle) >= len(prefix) && strings.EqualFold(handle[:len(prefix)], prefix) {
			handle = handle[len(prefix):]
			break
		}
	}
	handle = strings.TrimPrefix(handle, "@")
	return strings.TrimRight(handle, "/ ")
}
