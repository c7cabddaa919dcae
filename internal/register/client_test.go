package register

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sponsorcheck/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.RegisterURL = "https://example.test/media/register.csv"
	cfg.RegisterRateLimitRPS = 1000
	cfg.UserAgent = "sponsorcheck-test"

	client := NewClient(cfg)
	client.httpClient = &http.Client{Transport: rt}
	return client
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"text/csv"}},
	}
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	attempt := 0
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/media/register.csv", r.URL.Path)
		assert.Equal(t, "sponsorcheck-test", r.Header.Get("User-Agent"))
		attempt++
		if attempt == 1 {
			return response(http.StatusServiceUnavailable, "busy"), nil
		}
		return response(http.StatusOK, "Organisation Name\nAcme Ltd\n"), nil
	})

	p, err := client.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, attempt)
	assert.Equal(t, "text/csv", p.ContentType)
	assert.Contains(t, string(p.Body), "Acme Ltd")
}

func TestDownloadDoesNotRetryClientErrors(t *testing.T) {
	attempt := 0
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		attempt++
		return response(http.StatusNotFound, "gone"), nil
	})

	_, err := client.Download(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, attempt)
	assert.Contains(t, err.Error(), "status=404")
}

func TestDownloadStopsOnCancelledContext(t *testing.T) {
	client := testClient(t, func(r *http.Request) (*http.Response, error) {
		return response(http.StatusInternalServerError, "boom"), nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Download(ctx)
	require.Error(t, err)
}

func TestDownloadRequiresURL(t *testing.T) {
	client := testClient(t, nil)
	client.cfg.RegisterURL = " "
	_, err := client.Download(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REGISTER_URL")
}

func TestIsRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, isRetryableStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 404, 501} {
		assert.False(t, isRetryableStatus(code), code)
	}
}
