package instagram

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		handle   string
		expected string
	}{
		{
			name:     "simple handle",
			base:     BaseURL,
			handle:   "nasa",
			expected: fmt.Sprintf("%s%s?username=nasa", BaseURL, ProfileEndpoint),
		},
		{
			name:     "trailing slash on base",
			base:     "http://127.0.0.1:9000/",
			handle:   "test.user",
			expected: "http://127.0.0.1:9000/api/v1/users/web_profile_info/?username=test.user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ProfileURL(tt.base, tt.handle)
			assert.Equal(t, tt.expected, result)

			_, err := url.Parse(result)
			assert.NoError(t, err)
		})
	}
}

func TestReelsMediaURL(t *testing.T) {
	assert.Equal(t,
		"https://www.instagram.com/api/v1/feed/reels_media/?reel_ids=528817151",
		ReelsMediaURL(BaseURL, "528817151"))
}

func TestProfilePageURL(t *testing.T) {
	assert.Equal(t, "https://www.instagram.com/nasa/", ProfilePageURL(BaseURL, "nasa"))
	assert.Equal(t, "", ProfilePageURL(BaseURL, ""))
}

func TestIsValidHandle(t *testing.T) {
	tests := []struct {
		handle string
		valid  bool
	}{
		{"nasa", true},
		{"test_user.99", true},
		{"", false},
		{"with space", false},
		{"dash-ed", false},
		{"émile", false},
		{"abcdefghijklmnopqrstuvwxyz12345", false},
	}

	for _, tt := range tests {
		t.Run(tt.handle, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidHandle(tt.handle))
		})
	}
}

func TestSanitizeHandle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"@nasa", "nasa"},
		{"  nasa  ", "nasa"},
		{"nasa/", "nasa"},
		{"https://www.instagram.com/nasa/", "nasa"},
		{"instagram.com/@nasa", "nasa"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeHandle(tt.input))
		})
	}
}
