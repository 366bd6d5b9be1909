package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockStory is one story served by the mock platform
type MockStory struct {
	ID      string
	Video   bool
	TakenAt int64
}

// MockAccount is one account served by the mock platform
type MockAccount struct {
	ID       string
	Handle   string
	FullName string
	Private  bool
	Stories  []MockStory
}

// MockPlatform simulates the profile endpoint, the reel feed, public
// profile pages and the media CDN
type MockPlatform struct {
	server         *httptest.Server
	accounts       map[string]MockAccount
	errorResponses map[string]int
	delays         map[string]time.Duration
	hits           map[string]int
	mediaSize      int
	requestCount   int32
	mu             sync.RWMutex
}

// NewMockPlatform starts a mock platform server
func NewMockPlatform() *MockPlatform {
	m := &MockPlatform{
		accounts:       make(map[string]MockAccount),
		errorResponses: make(map[string]int),
		delays:         make(map[string]time.Duration),
		hits:           make(map[string]int),
		mediaSize:      2048,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/web_profile_info/", m.handleProfile)
	mux.HandleFunc("/api/v1/feed/reels_media/", m.handleReels)
	mux.HandleFunc("/media/", m.handleMedia)
	mux.HandleFunc("/", m.handleProfilePage)

	m.server = httptest.NewServer(mux)
	return m
}

// AddAccount registers an account
func (m *MockPlatform) AddAccount(a MockAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[strings.ToLower(a.Handle)] = a
}

// MediaURL returns the CDN URL of a story
func (m *MockPlatform) MediaURL(s MockStory) string {
	ext := "jpg"
	if s.Video {
		ext = "mp4"
	}
	return fmt.Sprintf("%s/media/%s.%s", m.server.URL, s.ID, ext)
}

// before records a hit for endpoint and applies configured delays and
// errors. It reports whether the handler should continue.
func (m *MockPlatform) before(w http.ResponseWriter, endpoint string) bool {
	atomic.AddInt32(&m.requestCount, 1)

	m.mu.Lock()
	m.hits[endpoint]++
	delay := m.delays[endpoint]
	code := m.errorResponses[endpoint]
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if code > 0 {
		w.WriteHeader(code)
		fmt.Fprintf(w, "Error %d", code)
		return false
	}
	return true
}

func (m *MockPlatform) account(handle string) (MockAccount, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[strings.ToLower(handle)]
	return a, ok
}

func (m *MockPlatform) accountByID(id string) (MockAccount, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return MockAccount{}, false
}

func (m *MockPlatform) handleProfile(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if !m.before(w, ProfileEndpoint(username)) {
		return
	}

	a, ok := m.account(username)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": "User not found",
			"status":  "fail",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": map[string]interface{}{
			"user": map[string]interface{}{
				"id":              a.ID,
				"username":        a.Handle,
				"full_name":       a.FullName,
				"is_private":      a.Private,
				"profile_pic_url": m.server.URL + "/media/avatar_" + a.ID + ".jpg",
			},
		},
		"status": "ok",
	})
}

func (m *MockPlatform) handleReels(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("reel_ids")
	if !m.before(w, ReelsEndpoint(id)) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	a, ok := m.accountByID(id)
	if !ok {
		json.NewEncoder(w).Encode(map[string]interface{}{"reels": map[string]interface{}{}, "status": "ok"})
		return
	}

	items := make([]map[string]interface{}, 0, len(a.Stories))
	for _, s := range a.Stories {
		item := map[string]interface{}{
			"id":       s.ID,
			"taken_at": s.TakenAt,
			"image_versions2": map[string]interface{}{
				"candidates": []map[string]interface{}{
					{"url": m.server.URL + "/media/thumb_" + s.ID + ".jpg", "width": 320, "height": 568},
					{"url": m.MediaURL(MockStory{ID: s.ID}), "width": 1080, "height": 1920},
				},
			},
		}
		if s.Video {
			item["media_type"] = 2
			item["video_versions"] = []map[string]interface{}{
				{"url": m.MediaURL(s), "width": 720, "height": 1280},
			}
		} else {
			item["media_type"] = 1
		}
		items = append(items, item)
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"reels": map[string]interface{}{
			a.ID: map[string]interface{}{
				"id": a.ID,
				"user": map[string]interface{}{
					"pk":         a.ID,
					"username":   a.Handle,
					"full_name":  a.FullName,
					"is_private": a.Private,
				},
				"items": items,
			},
		},
		"status": "ok",
	})
}

func (m *MockPlatform) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	handle := strings.Trim(r.URL.Path, "/")
	if !m.before(w, PageEndpoint(handle)) {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	a, ok := m.account(handle)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<html><body><h2>Sorry, this page isn't available.</h2></body></html>`)
		return
	}

	fmt.Fprintf(w, `<html><head><title>@%s</title>
<script type="application/json">{"page_id":"profilePage_%s","user":{"id":"%s","username":"%s","is_private":%t}}</script>
</head><body></body></html>`, a.Handle, a.ID, a.ID, a.Handle, a.Private)
}

func (m *MockPlatform) handleMedia(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/media/")
	if !m.before(w, MediaEndpoint(name)) {
		return
	}

	if strings.HasSuffix(name, ".mp4") {
		w.Header().Set("Content-Type", "video/mp4")
	} else {
		w.Header().Set("Content-Type", "image/jpeg")
	}

	m.mu.RLock()
	size := m.mediaSize
	m.mu.RUnlock()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}
	w.Write(data)
}

// ProfileEndpoint names the profile endpoint of handle for error and hit tracking
func ProfileEndpoint(handle string) string { return "profile:" + strings.ToLower(handle) }

// ReelsEndpoint names the reel feed of an account id
func ReelsEndpoint(id string) string { return "reels:" + id }

// PageEndpoint names the public profile page of handle
func PageEndpoint(handle string) string { return "page:" + strings.ToLower(handle) }

// MediaEndpoint names one CDN file such as "111.jpg"
func MediaEndpoint(file string) string { return "media:" + file }

// SetErrorResponse configures an endpoint to return a specific error code
func (m *MockPlatform) SetErrorResponse(endpoint string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorResponses[endpoint] = code
}

// ClearErrorResponse removes error configuration for an endpoint
func (m *MockPlatform) ClearErrorResponse(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errorResponses, endpoint)
}

// SetDelay configures response delay for an endpoint
func (m *MockPlatform) SetDelay(endpoint string, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[endpoint] = delay
}

// SetMediaSize sets the size of every served media file
func (m *MockPlatform) SetMediaSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mediaSize = n
}

// Hits returns how many requests endpoint received
func (m *MockPlatform) Hits(endpoint string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hits[endpoint]
}

// GetURL returns the base URL of the mock platform
func (m *MockPlatform) GetURL() string {
	return m.server.URL
}

// GetRequestCount returns the total number of requests
func (m *MockPlatform) GetRequestCount() int {
	return int(atomic.LoadInt32(&m.requestCount))
}

// ResetCounters resets all request counters
func (m *MockPlatform) ResetCounters() {
	atomic.StoreInt32(&m.requestCount, 0)
	m.mu.Lock()
	m.hits = make(map[string]int)
	m.mu.Unlock()
}

// Close shuts down the mock platform
func (m *MockPlatform) Close() {
	m.server.Close()
}
