package instagram

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igstories/pkg/config"
	errs "igstories/pkg/errors"
	"igstories/pkg/logger"
)

// mockRoundTripper allows us to intercept HTTP requests
type mockRoundTripper struct {
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.handler(req)
}

func newResponse(req *http.Request, statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
		Request:    req,
	}
}

func testPlatform(baseURL string) config.PlatformConfig {
	return config.PlatformConfig{
		BaseURL:    baseURL,
		AppID:      "936619743392459",
		UserAgents: []string{"ua-one", "ua-two"},
	}
}

func newMockClient(t *testing.T, handler func(req *http.Request) (*http.Response, error)) *Client {
	t.Helper()
	hc := &http.Client{Transport: &mockRoundTripper{handler: handler}, Timeout: 5 * time.Second}
	return NewClient(testPlatform(BaseURL), logger.NewTestLogger(), WithHTTPClient(hc))
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(config.PlatformConfig{}, logger.NewNopLogger())

	assert.Equal(t, BaseURL, client.BaseURL())
	assert.NotEmpty(t, client.userAgents)
	assert.Equal(t, 15*time.Second, client.httpClient.Timeout)
}

func TestUserAgentRotation(t *testing.T) {
	var (
		mu     sync.Mutex
		agents []string
	)
	client := newMockClient(t, func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		agents = append(agents, req.Header.Get("User-Agent"))
		mu.Unlock()
		return newResponse(req, http.StatusOK, `{}`), nil
	})

	for i := 0; i < 3; i++ {
		var out map[string]interface{}
		require.NoError(t, client.GetJSON(context.Background(), BaseURL+"/x", "test", &out))
	}
	assert.Equal(t, []string{"ua-one", "ua-two", "ua-one"}, agents)
}

func TestGetJSONHeaders(t *testing.T) {
	client := newMockClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "936619743392459", req.Header.Get("X-IG-App-ID"))
		assert.Equal(t, "XMLHttpRequest", req.Header.Get("X-Requested-With"))
		assert.Equal(t, "en-US,en;q=0.9", req.Header.Get("Accept-Language"))
		return newResponse(req, http.StatusOK, `{"ok": true}`), nil
	})

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.GetJSON(context.Background(), BaseURL+"/x", "test", &out))
	assert.True(t, out.OK)
}

func TestCheckResponseStatus(t *testing.T) {
	tests := []struct {
		status   int
		wantType errs.ErrorType
	}{
		{http.StatusUnauthorized, errs.ErrorTypeAuthRequired},
		{http.StatusForbidden, errs.ErrorTypeAuthRequired},
		{http.StatusNotFound, errs.ErrorTypeNotFound},
		{http.StatusTooManyRequests, errs.ErrorTypeUpstreamUnavailable},
		{http.StatusBadGateway, errs.ErrorTypeUpstreamUnavailable},
		{http.StatusTeapot, errs.ErrorTypeUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newMockClient(t, func(req *http.Request) (*http.Response, error) {
				return newResponse(req, tt.status, ""), nil
			})

			var out map[string]interface{}
			err := client.GetJSON(context.Background(), BaseURL+"/x", "test", &out)
			require.Error(t, err)
			assert.Equal(t, tt.wantType, errs.TypeOf(err))
			assert.Equal(t, tt.status, errs.As(err).Code)
		})
	}
}

func TestGetJSONNetworkAndParseErrors(t *testing.T) {
	client := newMockClient(t, func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Path, "/down") {
			return nil, errors.New("connection refused")
		}
		return newResponse(req, http.StatusOK, `<html>login</html>`), nil
	})

	var out map[string]interface{}
	err := client.GetJSON(context.Background(), BaseURL+"/down", "test", &out)
	assert.Equal(t, errs.ErrorTypeUpstreamUnavailable, errs.TypeOf(err))

	err = client.GetJSON(context.Background(), BaseURL+"/html", "test", &out)
	assert.Equal(t, errs.ErrorTypeParseFailure, errs.TypeOf(err))
}

func TestFetchProfile(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantType  errs.ErrorType
		wantID    string
		isPrivate bool
	}{
		{
			name:   "public account",
			status: http.StatusOK,
			body:   `{"data":{"user":{"id":"528817151","username":"nasa","full_name":"NASA","is_private":false}},"status":"ok"}`,
			wantID: "528817151",
		},
		{
			name:      "private account",
			status:    http.StatusOK,
			body:      `{"data":{"user":{"id":"42","username":"hidden","is_private":true}},"status":"ok"}`,
			wantID:    "42",
			isPrivate: true,
		},
		{
			name:     "missing user",
			status:   http.StatusOK,
			body:     `{"data":{"user":null},"status":"ok"}`,
			wantType: errs.ErrorTypeNotFound,
		},
		{
			name:     "login wall",
			status:   http.StatusOK,
			body:     `{"require_login":true,"status":"fail"}`,
			wantType: errs.ErrorTypeAuthRequired,
		},
		{
			name:     "not found status",
			status:   http.StatusNotFound,
			body:     ``,
			wantType: errs.ErrorTypeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockClient(t, func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, ProfileEndpoint, req.URL.Path)
				assert.Equal(t, "nasa", req.URL.Query().Get("username"))
				return newResponse(req, tt.status, tt.body), nil
			})

			user, err := client.FetchProfile(context.Background(), "nasa")
			if tt.wantType != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantType, errs.TypeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, user.ID.String())
			assert.Equal(t, tt.isPrivate, user.IsPrivate)
		})
	}
}

func TestFetchReel(t *testing.T) {
	t.Run("active stories", func(t *testing.T) {
		client := newMockClient(t, func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, ReelsMediaEndpoint, req.URL.Path)
			assert.Equal(t, "7", req.URL.Query().Get("reel_ids"))
			return newResponse(req, http.StatusOK, `{"reels":{"7":{"id":"7","items":[{"id":"1","image_versions2":{"candidates":[{"url":"https://cdn/1.jpg","width":10}]}}]}},"status":"ok"}`), nil
		})

		reel, err := client.FetchReel(context.Background(), "7")
		require.NoError(t, err)
		assert.Len(t, reel.Items, 1)
	})

	t.Run("no active stories", func(t *testing.T) {
		client := newMockClient(t, func(req *http.Request) (*http.Response, error) {
			return newResponse(req, http.StatusOK, `{"reels":{},"reels_media":[],"status":"ok"}`), nil
		})

		reel, err := client.FetchReel(context.Background(), "7")
		require.NoError(t, err)
		assert.Empty(t, reel.Items)
		assert.Equal(t, "7", reel.ID.String())
	})

	t.Run("failed status", func(t *testing.T) {
		client := newMockClient(t, func(req *http.Request) (*http.Response, error) {
			return newResponse(req, http.StatusOK, `{"status":"fail","message":"checkpoint_required"}`), nil
		})

		_, err := client.FetchReel(context.Background(), "7")
		require.Error(t, err)
		assert.Equal(t, errs.ErrorTypeUpstreamUnavailable, errs.TypeOf(err))
		assert.Contains(t, err.Error(), "checkpoint_required")
	})
}

func TestFetchProfileHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "text/html")
		if r.URL.Path != "/nasa/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><script>{"profilePage_528817151"}</script></html>`))
	}))
	defer server.Close()

	client := NewClient(testPlatform(server.URL), logger.NewNopLogger())

	page, err := client.FetchProfileHTML(context.Background(), "nasa")
	require.NoError(t, err)
	assert.Contains(t, page, "profilePage_528817151")

	_, err = client.FetchProfileHTML(context.Background(), "ghost")
	assert.Equal(t, errs.ErrorTypeNotFound, errs.TypeOf(err))
}

func TestRequestHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(testPlatform(server.URL), logger.NewNopLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchProfile(ctx, "slow")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeUpstreamUnavailable, errs.TypeOf(err))
}
