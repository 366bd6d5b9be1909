package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// fakeBrowser is a scripted BrowserSession
type fakeBrowser struct {
	mu sync.Mutex

	navigateErr error
	fillErr     error
	submitErr   error
	signerErr   error
	resultErr   error
	panicOn     string
	result      string

	calls  []string
	closed int
}

func (f *fakeBrowser) record(step string) {
	f.mu.Lock()
	f.calls = append(f.calls, step)
	f.mu.Unlock()
	if f.panicOn == step {
		panic("boom in " + step)
	}
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string) error {
	f.record("navigate")
	return f.navigateErr
}

func (f *fakeBrowser) Fill(ctx context.Context, selector, value string) error {
	f.record("fill")
	return f.fillErr
}

func (f *fakeBrowser) Submit(ctx context.Context, selector string) error {
	f.record("submit")
	return f.submitErr
}

func (f *fakeBrowser) WaitFor(ctx context.Context, expr string) error {
	if expr == DefaultViewer("").SignerReady {
		f.record("wait_signer")
		return f.signerErr
	}
	f.record("wait_result")
	return f.resultErr
}

func (f *fakeBrowser) Evaluate(ctx context.Context, expr string, out interface{}) error {
	if out == nil {
		f.record("fetch")
		return nil
	}
	f.record("read_result")
	return json.Unmarshal(mustJSON(f.result), out)
}

func (f *fakeBrowser) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// fakeLauncher hands out one scripted session
type fakeLauncher struct {
	session  *fakeBrowser
	err      error
	launches int
}

func (l *fakeLauncher) Launch(ctx context.Context) (BrowserSession, error) {
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

// fakeRunner records invocations and replays canned output
type fakeRunner struct {
	stdout string
	stderr string
	err    error
	block  bool

	calls   int
	name    string
	args    []string
	timeout time.Duration
}

func (r *fakeRunner) Run(ctx context.Context, name string, args []string, timeout time.Duration) ([]byte, []byte, error) {
	r.calls++
	r.name, r.args, r.timeout = name, args, timeout
	if r.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	return []byte(r.stdout), []byte(r.stderr), r.err
}

// fakeSessionStore pretends a session is saved
type fakeSessionStore struct {
	exists         bool
	materializeErr error

	materialized int
	cleaned      int
}

func (s *fakeSessionStore) Exists() bool { return s.exists }

func (s *fakeSessionStore) Materialize(dir string) (string, func(), error) {
	if s.materializeErr != nil {
		return "", nil, s.materializeErr
	}
	s.materialized++
	return "/tmp/igstories-cookies-test.txt", func() { s.cleaned++ }, nil
}

var errBoom = errors.New("boom")
