package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sponsorcheck/internal/agent"
	"sponsorcheck/internal/browser"
	"sponsorcheck/internal/register"
	"sponsorcheck/internal/report"
	"sponsorcheck/internal/scan"
)

var (
	pageInput    string
	pageURL      string
	pageHost     string
	pageOut      string
	pageReport   string
	pageRender   bool
	pageInterval time.Duration
)

// pageSource loads the starting HTML for --input or --url and, for --url,
// returns what to poll afterwards.
func pageSource(ctx context.Context) (string, browser.Snapshotter, func(), error) {
	switch {
	case pageInput != "":
		b, err := os.ReadFile(pageInput)
		if err != nil {
			return "", nil, nil, eris.Wrap(err, "read --input")
		}
		return string(b), nil, func() {}, nil
	case pageURL != "" && pageRender:
		r := browser.NewRenderer(ctx, cfg)
		html, err := r.Render(ctx, pageURL)
		if err != nil {
			r.Close()
			return "", nil, nil, err
		}
		return html, r, r.Close, nil
	case pageURL != "":
		f := browser.NewFetcher(cfg)
		html, err := f.FetchHTML(ctx, pageURL)
		if err != nil {
			return "", nil, nil, err
		}
		return html, browser.PollURL(f, pageURL), func() {}, nil
	}
	return "", nil, nil, eris.New("one of --input or --url is required")
}

func resolveHost() (string, error) {
	if pageHost != "" {
		return strings.ToLower(pageHost), nil
	}
	if pageURL != "" {
		if host := browser.HostOf(pageURL); host != "" {
			return host, nil
		}
	}
	return "", eris.New("--host is required when it cannot be taken from --url")
}

var pageAnnotateCmd = &cobra.Command{
	Use:   "page:annotate",
	Short: "Mark sponsor company names in a saved or downloaded page",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		host, err := resolveHost()
		if err != nil {
			return err
		}
		if pageOut == "" {
			return eris.New("--out is required")
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		scanner, err := loadScanner()
		if err != nil {
			return err
		}
		reg, err := loadRegistry(ctx, db)
		if err != nil {
			return err
		}

		html, _, closeSource, err := pageSource(ctx)
		if err != nil {
			return err
		}
		defer closeSource()

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return eris.Wrap(err, "parse page")
		}
		rep := scanner.Scan(doc, host, reg)
		if !rep.Known {
			zap.L().Warn("no site profile for host, page left unchanged", zap.String("host", host))
		}

		out, err := doc.Html()
		if err != nil {
			return eris.Wrap(err, "render page")
		}
		if err := os.MkdirAll(filepath.Dir(pageOut), 0o755); err != nil {
			return eris.Wrap(err, "create output dir")
		}
		if err := os.WriteFile(pageOut, []byte(out), 0o644); err != nil {
			return eris.Wrap(err, "write --out")
		}
		if pageReport != "" {
			if err := report.ExportOutcomesToXLSX(rep.Rows(), pageReport); err != nil {
				return err
			}
		}

		fmt.Printf("annotated site=%s elements=%d sponsors=%d out=%s\n", rep.Site, len(rep.Outcomes), rep.Sponsors(), pageOut)
		return nil
	},
}

var pageWatchCmd = &cobra.Command{
	Use:   "page:watch",
	Short: "Keep sponsor marks on a live page up to date until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if pageURL == "" {
			return eris.New("--url is required")
		}
		host, err := resolveHost()
		if err != nil {
			return err
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		scanner, err := loadScanner()
		if err != nil {
			return err
		}

		pageInput = ""
		html, snap, closeSource, err := pageSource(ctx)
		if err != nil {
			return err
		}
		defer closeSource()

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return eris.Wrap(err, "parse page")
		}

		var (
			mu   sync.Mutex
			last scan.Report
		)
		loop := scan.NewLoop(doc, host, scanner, scan.WithPassHook(func(rep scan.Report) {
			mu.Lock()
			last = rep
			mu.Unlock()
			zap.L().Info("page scanned",
				zap.String("site", rep.Site),
				zap.Int("elements", len(rep.Outcomes)),
				zap.Int("sponsors", rep.Sponsors()),
			)
		}))

		interval := pageInterval
		if interval <= 0 {
			interval = time.Duration(cfg.WatchIntervalSec) * time.Second
		}
		ag := agent.New(db, loop, register.NewSyncService(db, cfg))
		watcher := browser.NewWatcher(snap, loop, interval, html)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return ag.Run(gctx) })
		g.Go(func() error { return watcher.Run(gctx) })
		if err := g.Wait(); err != nil {
			return err
		}

		if pageReport != "" {
			mu.Lock()
			rows := last.Rows()
			mu.Unlock()
			return report.ExportOutcomesToXLSX(rows, pageReport)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{pageAnnotateCmd, pageWatchCmd} {
		c.Flags().StringVar(&pageURL, "url", "", "page url")
		c.Flags().StringVar(&pageHost, "host", "", "host used to pick the site profile (default from --url)")
		c.Flags().BoolVar(&pageRender, "render", false, "render with headless Chrome instead of a plain GET")
		c.Flags().StringVar(&pageReport, "report", "", "write scan outcomes to this xlsx path")
	}
	pageAnnotateCmd.Flags().StringVar(&pageInput, "input", "", "saved html file")
	pageAnnotateCmd.Flags().StringVar(&pageOut, "out", "", "annotated html output path")
	pageWatchCmd.Flags().DurationVar(&pageInterval, "interval", 0, "poll interval (default WATCH_INTERVAL_SEC)")
	rootCmd.AddCommand(pageAnnotateCmd, pageWatchCmd)
}
