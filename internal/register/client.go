package register

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"sponsorcheck/internal/config"
)

const maxAttempts = 5

// Payload is a downloaded document.
type Payload struct {
	URL         string
	ContentType string
	Body        []byte
}

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.RegisterTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.RegisterRateLimitRPS),
	}
}

// Download fetches the configured register file.
func (c *Client) Download(ctx context.Context) (Payload, error) {
	if strings.TrimSpace(c.cfg.RegisterURL) == "" {
		return Payload{}, eris.New("register: missing REGISTER_URL")
	}
	p, err := c.Get(ctx, c.cfg.RegisterURL)
	return p, eris.Wrap(err, "register: download")
}

// Get performs a rate limited GET, retrying transport errors and 429/5xx
// responses with exponential backoff.
func (c *Client) Get(ctx context.Context, rawURL string) (Payload, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return Payload{}, eris.Wrap(err, "register: rate limit wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return Payload{}, eris.Wrap(err, "register: build request")
		}
		if c.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			if err := c.backoff(ctx, attempt, rawURL, 0); err != nil {
				return Payload{}, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = eris.Errorf("register: status %d", resp.StatusCode)
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				if err := c.backoff(ctx, attempt, rawURL, resp.StatusCode); err != nil {
					return Payload{}, err
				}
				continue
			}
			return Payload{}, eris.Errorf("register: http error status=%d body=%s", resp.StatusCode, truncate(string(body), 200))
		}

		return Payload{URL: rawURL, ContentType: resp.Header.Get("Content-Type"), Body: body}, nil
	}

	if lastErr == nil {
		lastErr = eris.New("register: request failed")
	}
	return Payload{}, lastErr
}

func (c *Client) backoff(ctx context.Context, attempt int, rawURL string, status int) error {
	if attempt >= maxAttempts {
		return nil
	}
	wait := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
	zap.L().Debug("register: retrying request",
		zap.String("url", rawURL),
		zap.Int("attempt", attempt),
		zap.Int("status", status),
		zap.Duration("backoff", wait),
	)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "register: backoff")
	case <-timer.C:
		return nil
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
