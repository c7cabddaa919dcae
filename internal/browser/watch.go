package browser

import (
	"context"
	"crypto/sha256"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"sponsorcheck/internal/scan"
)

// Watcher polls a page and pushes every content change into a scan loop as
// a mutation, so badges follow content that the site loads later.
type Watcher struct {
	page     Snapshotter
	loop     *scan.Loop
	interval time.Duration
	last     [sha256.Size]byte
	log      *zap.Logger
}

// NewWatcher starts from initial, the HTML the loop's document was built from.
func NewWatcher(page Snapshotter, loop *scan.Loop, interval time.Duration, initial string) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{
		page:     page,
		loop:     loop,
		interval: interval,
		last:     sha256.Sum256([]byte(initial)),
		log:      zap.L().Named("watcher"),
	}
}

func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		changed, err := w.Poll(ctx)
		if errors.Is(err, scan.ErrStopped) {
			return nil
		}
		if err != nil {
			w.log.Warn("poll failed", zap.Error(err))
			continue
		}
		if changed {
			w.log.Debug("page changed")
		}
	}
}

// Poll takes one snapshot and, if it differs from the previous one, replaces
// the loop document's body with the new content.
func (w *Watcher) Poll(ctx context.Context) (bool, error) {
	html, err := w.page.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256([]byte(html))
	if sum == w.last {
		return false, nil
	}

	fresh, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, eris.Wrap(err, "browser: parse snapshot")
	}
	body, err := fresh.Find("body").Html()
	if err != nil {
		return false, eris.Wrap(err, "browser: render snapshot body")
	}

	if err := w.loop.Mutate(ctx, func(doc *goquery.Document) {
		ReplaceBody(doc, body)
	}); err != nil {
		return false, err
	}
	w.last = sum
	return true, nil
}

// ReplaceBody swaps the inner HTML of doc's body.
func ReplaceBody(doc *goquery.Document, inner string) {
	body := doc.Find("body")
	if body.Length() == 0 {
		doc.Find("html").AppendHtml("<body></body>")
		body = doc.Find("body")
	}
	body.SetHtml(inner)
}
