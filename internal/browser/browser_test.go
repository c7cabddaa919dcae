package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sponsorcheck/internal/config"
	"sponsorcheck/internal/page"
	"sponsorcheck/internal/registry"
	"sponsorcheck/internal/scan"
)

const (
	pageV1 = `<html><body><span class="companyName">Initech</span></body></html>`
	pageV2 = `<html><body><span class="companyName">Initech</span><span class="companyName">Acme Corp Ltd.</span></body></html>`
)

type scriptedPage struct {
	mu    sync.Mutex
	html  string
	err   error
	calls int
}

func (s *scriptedPage) Snapshot(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.html, s.err
}

func (s *scriptedPage) set(html string) {
	s.mu.Lock()
	s.html = html
	s.mu.Unlock()
}

func startLoop(t *testing.T, html string) (*scan.Loop, context.Context) {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	loop := scan.NewLoop(doc, "uk.indeed.com", scan.NewScanner(scan.DefaultSites()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.NoError(t, loop.Hydrate(ctx, true, registry.FromKeys([]string{"acme corp"})))
	return loop, ctx
}

func badges(t *testing.T, loop *scan.Loop, ctx context.Context) int {
	var n int
	require.NoError(t, loop.Inspect(ctx, func(doc *goquery.Document, _ scan.State) {
		n = doc.Find("." + page.BadgeClass).Length()
	}))
	return n
}

func TestWatcherPollAppliesChanges(t *testing.T) {
	loop, ctx := startLoop(t, pageV1)
	src := &scriptedPage{html: pageV1}
	w := NewWatcher(src, loop, time.Second, pageV1)

	changed, err := w.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Zero(t, badges(t, loop, ctx))

	src.set(pageV2)
	changed, err = w.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, badges(t, loop, ctx))

	changed, err = w.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, badges(t, loop, ctx))
}

func TestWatcherPollSnapshotError(t *testing.T) {
	loop, ctx := startLoop(t, pageV1)
	src := &scriptedPage{err: errors.New("tab crashed")}
	w := NewWatcher(src, loop, time.Second, pageV1)

	_, err := w.Poll(ctx)
	require.Error(t, err)
}

func TestWatcherRunPolls(t *testing.T) {
	loop, ctx := startLoop(t, pageV1)
	src := &scriptedPage{html: pageV2}
	w := NewWatcher(src, loop, 10*time.Millisecond, pageV1)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	require.Eventually(t, func() bool { return badges(t, loop, ctx) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestReplaceBody(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><head><title>t</title></head><body><p>old</p></body></html>`))
	require.NoError(t, err)

	ReplaceBody(doc, `<p>new</p>`)
	assert.Equal(t, "new", doc.Find("body p").Text())
	assert.Equal(t, "t", doc.Find("title").Text())
}

func TestFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(pageV1))
	}))
	defer srv.Close()

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.RegisterRateLimitRPS = 100

	f := NewFetcher(cfg)
	html, err := f.FetchHTML(context.Background(), srv.URL+"/jobs")
	require.NoError(t, err)
	assert.Equal(t, pageV1, html)

	snap, err := PollURL(f, srv.URL).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pageV1, snap)

	_, err = f.FetchHTML(context.Background(), "not a url")
	require.Error(t, err)
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "www.linkedin.com", HostOf("https://www.linkedin.com/jobs/view/1"))
	assert.Equal(t, "", HostOf("::bad"))
}
