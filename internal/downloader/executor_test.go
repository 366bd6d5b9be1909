package downloader

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igstories/pkg/errors"
	"igstories/pkg/logger"
	"igstories/pkg/retry"
)

func fastRetrier() *retry.Retrier {
	return retry.NewRetrier(&retry.Config{
		MaxAttempts: DefaultAttempts,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
	})
}

func newTestExecutor() *Executor {
	return NewExecutor(5*time.Second, DefaultMinSize, fastRetrier(), WithLogger(logger.NewNopLogger()))
}

func TestExecutorFetchSuccess(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB}, 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(body)
	}))
	defer srv.Close()

	payload, err := newTestExecutor().Fetch(context.Background(), srv.URL+"/v.mp4")
	require.NoError(t, err)
	assert.Equal(t, body, payload.Data)
	assert.Equal(t, "video/mp4", payload.ContentType)
}

func TestExecutorRejectsSmallBody(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(bytes.Repeat([]byte("x"), 500))
	}))
	defer srv.Close()

	_, err := newTestExecutor().Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeResourceTooSmall))
	assert.Equal(t, int32(1), hits.Load(), "undersized bodies are not retried")
}

func TestExecutorStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantType errs.ErrorType
		wantHits int32
	}{
		{"not found", http.StatusNotFound, errs.ErrorTypeNotFound, 1},
		{"forbidden", http.StatusForbidden, errs.ErrorTypeUpstreamUnavailable, 1},
		{"server error retried once", http.StatusBadGateway, errs.ErrorTypeUpstreamUnavailable, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newTestExecutor().Fetch(context.Background(), srv.URL)
			require.Error(t, err)

			var e *errs.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.wantType, e.Type)
			assert.Equal(t, tt.status, e.Code)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestExecutorRetriesTransientFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(bytes.Repeat([]byte("y"), 2000))
	}))
	defer srv.Close()

	payload, err := newTestExecutor().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, payload.Data, 2000)
	assert.Equal(t, int32(2), hits.Load())
}

func TestExecutorFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("z"), 1500))
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	exec := newTestExecutor()

	payload, err := exec.Fetch(context.Background(), srv.URL+"/hop")
	require.NoError(t, err)
	assert.Len(t, payload.Data, 1500)

	_, err = exec.Fetch(context.Background(), srv.URL+"/loop")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeUpstreamUnavailable))
}

func TestExecutorCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestExecutor().Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewExecutorDefaults(t *testing.T) {
	exec := NewExecutor(0, 0, nil, WithLogger(logger.NewNopLogger()))
	assert.Equal(t, DefaultTimeout, exec.httpClient.Timeout)
	assert.Equal(t, DefaultMinSize, exec.minSize)
	assert.Equal(t, DefaultAttempts, exec.retrier.MaxAttempts())
}
