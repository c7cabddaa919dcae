package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sponsorcheck/internal"
	"sponsorcheck/internal/config"
	"sponsorcheck/internal/page"
	"sponsorcheck/internal/scan"
	"sponsorcheck/internal/storage"
)

type fakeRefresher struct {
	ok    atomic.Bool
	calls atomic.Int32
}

func (f *fakeRefresher) ForceRefresh(ctx context.Context) bool {
	f.calls.Add(1)
	return f.ok.Load()
}

type fixture struct {
	db  *storage.DB
	srv *Server
	ts  *httptest.Server
	ref *fakeRefresher
}

func newFixture(t *testing.T, seed bool) *fixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "sponsors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if seed {
		require.NoError(t, db.ReplaceSponsors(context.Background(), []internal.SponsorRecord{
			{Key: "acme corp", Name: "Acme Corp Ltd"},
			{Key: "globex", Name: "Globex"},
		}, time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC)))
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.CORSOrigins = []string{"*"}

	ref := &fakeRefresher{}
	ref.ok.Store(true)
	srv := New(db, ref, scan.NewScanner(scan.DefaultSites()), cfg)
	require.NoError(t, srv.LoadRegistry(context.Background()))

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.hub.Close)
	return &fixture{db: db, srv: srv, ts: ts, ref: ref}
}

func (f *fixture) getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	var out map[string]string
	assert.Equal(t, http.StatusOK, f.getJSON(t, "/health", &out))
	assert.Equal(t, "ok", out["status"])
}

func TestStatus(t *testing.T) {
	f := newFixture(t, true)
	var out struct {
		LastUpdated string `json:"lastUpdated"`
		TotalCount  int    `json:"totalCount"`
		IsEnabled   bool   `json:"isEnabled"`
	}
	assert.Equal(t, http.StatusOK, f.getJSON(t, "/status", &out))
	assert.Equal(t, 2, out.TotalCount)
	assert.True(t, out.IsEnabled)
	assert.Equal(t, "2025-12-29T00:00:00Z", out.LastUpdated)
}

func TestSetEnabled(t *testing.T) {
	f := newFixture(t, true)

	resp := f.do(t, http.MethodPut, "/enabled", `{"isEnabled": false}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	on, err := f.db.Enabled(context.Background())
	require.NoError(t, err)
	assert.False(t, on)

	resp = f.do(t, http.MethodPut, "/enabled", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, false)
	resp := f.do(t, http.MethodPost, "/refresh", "")
	var out map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out["success"])

	f.ref.ok.Store(false)
	resp = f.do(t, http.MethodPost, "/refresh", "")
	out = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out["success"])
	assert.Equal(t, int32(2), f.ref.calls.Load())
}

func TestSearch(t *testing.T) {
	f := newFixture(t, true)

	tests := []struct {
		query string
		want  searchResponse
	}{
		{"a", searchResponse{Query: "a"}},
		{"ACME CORP LIMITED", searchResponse{Query: "ACME CORP LIMITED", Checked: true, Key: "acme corp", IsSponsor: true, Name: "Acme Corp Ltd"}},
		{"Initech", searchResponse{Query: "Initech", Checked: true, Key: "initech"}},
		{"Ltd.", searchResponse{Query: "Ltd.", Checked: true}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var got searchResponse
			assert.Equal(t, http.StatusOK, f.getJSON(t, "/search?q="+url.QueryEscape(tt.query), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchWithoutRegister(t *testing.T) {
	f := newFixture(t, false)
	var got searchResponse
	f.getJSON(t, "/search?q=globex", &got)
	assert.False(t, got.Checked)
	assert.False(t, got.IsSponsor)
}

func TestCheck(t *testing.T) {
	f := newFixture(t, true)
	var out map[string]bool
	f.getJSON(t, "/check?name="+url.QueryEscape("Globex PLC"), &out)
	assert.True(t, out["isSponsor"])

	out = nil
	f.getJSON(t, "/check?name=", &out)
	assert.False(t, out["isSponsor"])
}

const linkedinPage = `<html><body><div class="job-card-container__primary-description">Acme Corp Ltd.</div>` +
	`<div class="job-card-container__primary-description">Initech</div></body></html>`

func TestAnnotate(t *testing.T) {
	f := newFixture(t, true)

	resp := f.do(t, http.MethodPost, "/annotate?host=www.linkedin.com", linkedinPage)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-Sponsor-Count"))
	assert.Equal(t, "linkedin", resp.Header.Get("X-Sponsor-Site"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(body), page.BadgeClass))

	resp = f.do(t, http.MethodPost, "/annotate", linkedinPage)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnnotateDisabledReturnsCleanPage(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.db.SetEnabled(context.Background(), false))

	resp := f.do(t, http.MethodPost, "/annotate?host=www.linkedin.com", linkedinPage)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-Sponsor-Count"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(body), page.BadgeClass)
}

func TestAnnotateWithoutRegister(t *testing.T) {
	f := newFixture(t, false)
	resp := f.do(t, http.MethodPost, "/annotate?host=www.linkedin.com", linkedinPage)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebsocketBroadcasts(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := f.db.Subscribe()
	go func() { _ = f.srv.follow(ctx, sub) }()

	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))

	var greet toggleMessage
	require.NoError(t, ws.ReadJSON(&greet))
	assert.Equal(t, toggleMessage{Type: msgToggleState, IsEnabled: true}, greet)

	require.Eventually(t, func() bool { return f.srv.hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	resp := f.do(t, http.MethodPut, "/enabled", `{"isEnabled": false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var toggled toggleMessage
	require.NoError(t, ws.ReadJSON(&toggled))
	assert.Equal(t, toggleMessage{Type: msgToggleState, IsEnabled: false}, toggled)

	require.NoError(t, f.db.ReplaceSponsors(context.Background(), []internal.SponsorRecord{{Key: "initech", Name: "Initech"}}, time.Now()))

	var updated sponsorsMessage
	require.NoError(t, ws.ReadJSON(&updated))
	assert.Equal(t, msgSponsorsUpdated, updated.Type)
	assert.Equal(t, 1, updated.TotalCount)
	assert.NotNil(t, updated.LastUpdated)
	assert.True(t, f.srv.reg.Contains("initech"))
	assert.False(t, f.srv.reg.Contains("acme corp"))
}

