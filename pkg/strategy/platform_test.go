package strategy

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"igstories/pkg/cache"
	"igstories/pkg/clock"
	"igstories/pkg/config"
	"igstories/pkg/instagram"
	"igstories/pkg/logger"
)

// fakePlatform serves the profile, reel and profile page endpoints for a
// handful of accounts
type fakePlatform struct {
	server *httptest.Server

	profileCalls atomic.Int32
	reelCalls    atomic.Int32
	pageCalls    atomic.Int32
}

const reelBody = `{"reels": {"%[1]s": {"id": "%[1]s", "user": {"pk": "%[1]s", "username": "%[2]s", "full_name": "Test Account"},
  "items": [
    {"id": "%[1]s_1", "taken_at": 1700000000, "video_versions": [{"url": "https://cdn.test/%[1]s/v.mp4", "width": 720}],
     "image_versions2": {"candidates": [{"url": "https://cdn.test/%[1]s/t.jpg", "width": 640}]}},
    {"id": "%[1]s_2", "taken_at": 1700000500, "image_versions2": {"candidates": [{"url": "https://cdn.test/%[1]s/i.jpg", "width": 1080}]}}
  ]}}, "status": "ok"}`

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	p := &fakePlatform{}

	mux := http.NewServeMux()
	mux.HandleFunc(instagram.ProfileEndpoint, func(w http.ResponseWriter, r *http.Request) {
		p.profileCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("username") {
		case "nasa":
			fmt.Fprint(w, `{"data": {"user": {"id": "528817151", "username": "nasa", "full_name": "NASA", "is_private": false}}, "status": "ok"}`)
		case "secretive":
			fmt.Fprint(w, `{"data": {"user": {"id": "77", "username": "secretive", "is_private": true}}, "status": "ok"}`)
		case "quiet":
			fmt.Fprint(w, `{"data": {"user": {"id": "88", "username": "quiet"}}, "status": "ok"}`)
		case "flaky":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc(instagram.ReelsMediaEndpoint, func(w http.ResponseWriter, r *http.Request) {
		p.reelCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch id := r.URL.Query().Get("reel_ids"); id {
		case "88":
			fmt.Fprint(w, `{"reels": {}, "status": "ok"}`)
		default:
			fmt.Fprintf(w, reelBody, id, "nasa")
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		p.pageCalls.Add(1)
		handle := strings.Trim(r.URL.Path, "/")
		switch handle {
		case "nasa":
			fmt.Fprint(w, `<html><head><script type="application/json">{"require":[["PolarisProfilePage",{"id":"528817151","username":"nasa"}]],"page_id":"profilePage_528817151"}</script></head><body></body></html>`)
		case "secretive":
			fmt.Fprint(w, `<html><body><h2>This Account is Private</h2><script>{"profile_id":"77"}</script></body></html>`)
		case "noid":
			fmt.Fprint(w, `<html><body><p>Welcome</p></body></html>`)
		case "gone":
			fmt.Fprint(w, `<html><body><h2>Sorry, this page isn't available.</h2></body></html>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePlatform) client() *instagram.Client {
	return instagram.NewClient(config.PlatformConfig{
		BaseURL:        p.server.URL,
		UserAgents:     []string{"test-agent"},
		RequestTimeout: 5 * time.Second,
	}, logger.NewNopLogger())
}

func testStores(c clock.Clock) *cache.Stores {
	return cache.NewStores(config.DefaultConfig().Cache, c)
}
