package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"sponsorcheck/internal/config"
)

// Renderer drives one headless Chrome tab. Pages that build their listings
// with JavaScript only have company names after rendering.
type Renderer struct {
	tabCtx  context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

func NewRenderer(ctx context.Context, cfg config.Config) *Renderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.ChromeHeadless),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(zap.S().Named("chrome").Debugf),
	)

	timeout := time.Duration(cfg.RenderTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Renderer{
		tabCtx: tabCtx,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
		timeout: timeout,
	}
}

// Render navigates the tab to rawURL and returns the document's outer HTML
// once body is ready.
func (r *Renderer) Render(ctx context.Context, rawURL string) (string, error) {
	var html string
	err := r.run(ctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, eris.Wrapf(err, "browser: render %s", rawURL)
}

// Snapshot returns the tab's current outer HTML without navigating.
func (r *Renderer) Snapshot(ctx context.Context) (string, error) {
	var html string
	err := r.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, eris.Wrap(err, "browser: snapshot")
}

func (r *Renderer) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(r.tabCtx, r.timeout)
	defer cancel()

	// Tie the tab-scoped context to the caller's cancellation.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (r *Renderer) Close() {
	r.cancel()
}
