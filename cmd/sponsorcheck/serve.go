package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sponsorcheck/internal/register"
	"sponsorcheck/internal/scheduler"
	"sponsorcheck/internal/server"
)

var (
	serveAddr     string
	serveSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		scanner, err := loadScanner()
		if err != nil {
			return err
		}

		refresher := register.NewSyncService(db, cfg)
		srv := server.New(db, refresher, scanner, cfg)

		addr := serveAddr
		if addr == "" {
			addr = cfg.ServerAddr
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.ListenAndServe(gctx, addr) })
		if serveSchedule {
			g.Go(func() error { return scheduler.NewService(db, refresher, cfg).Run(gctx) })
		}
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default SERVER_ADDR)")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", true, "also run the periodic register refresh")
	rootCmd.AddCommand(serveCmd)
}
