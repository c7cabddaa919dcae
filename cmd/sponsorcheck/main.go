package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sponsorcheck/internal/config"
	"sponsorcheck/internal/register"
	"sponsorcheck/internal/registry"
	"sponsorcheck/internal/scan"
	"sponsorcheck/internal/storage"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "sponsorcheck",
	Short:         "Mark UK licensed visa sponsors on job listing pages",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		return eris.Wrap(config.InitLogger(cfg.LogLevel, cfg.LogFormat), "init logger")
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	must(rootCmd.Execute())
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func openStore() (*storage.DB, error) {
	return storage.Open(cfg.DBPath)
}

func loadScanner() (*scan.Scanner, error) {
	sites, err := scan.LoadSites(cfg.SitesPath)
	if err != nil {
		return nil, err
	}
	return scan.NewScanner(sites), nil
}

// loadRegistry reads the stored register, downloading it first when the
// store is empty.
func loadRegistry(ctx context.Context, db *storage.DB) (*registry.Registry, error) {
	keys, err := db.ListSponsorKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		zap.L().Info("no stored register, downloading")
		res := register.NewSyncService(db, cfg).Refresh(ctx)
		if !res.Success {
			if res.Err == nil {
				return nil, eris.New("download register failed")
			}
			return nil, eris.Wrap(res.Err, "download register")
		}
		if keys, err = db.ListSponsorKeys(ctx); err != nil {
			return nil, err
		}
	}
	return registry.FromKeys(keys), nil
}
