package browser

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"sponsorcheck/internal/config"
	"sponsorcheck/internal/register"
)

// Fetcher downloads static HTML with the register client's retry and rate
// limiting.
type Fetcher struct {
	client *register.Client
}

func NewFetcher(cfg config.Config) *Fetcher {
	return &Fetcher{client: register.NewClient(cfg)}
}

func (f *Fetcher) FetchHTML(ctx context.Context, rawURL string) (string, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return "", eris.Wrapf(err, "browser: bad url %q", rawURL)
	}
	p, err := f.client.Get(ctx, rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "browser: fetch %s", rawURL)
	}
	return string(p.Body), nil
}

// Snapshotter returns the current HTML of a watched page.
type Snapshotter interface {
	Snapshot(ctx context.Context) (string, error)
}

type urlSnapshot struct {
	fetcher *Fetcher
	url     string
}

// PollURL snapshots rawURL by downloading it again on every call.
func PollURL(f *Fetcher, rawURL string) Snapshotter {
	return urlSnapshot{fetcher: f, url: rawURL}
}

func (u urlSnapshot) Snapshot(ctx context.Context) (string, error) {
	return u.fetcher.FetchHTML(ctx, u.url)
}

// HostOf returns the lowercase host of rawURL, or "" if it has none.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
