package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"sponsorcheck/internal/register"
	"sponsorcheck/internal/report"
	"sponsorcheck/internal/util"
)

var refreshForce bool

var registerRefreshCmd = &cobra.Command{
	Use:   "register:refresh",
	Short: "Download the sponsor register if it is stale (or always with --force)",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := register.NewSyncService(db, cfg)
		if !refreshForce {
			res, ran, err := svc.RefreshIfStale(cmd.Context(), cfg.RegisterMaxAge())
			if err != nil {
				return err
			}
			if !ran {
				fmt.Println("register is up to date")
				return nil
			}
			return printRefresh(res.TraceID, res.Success, res.Count, res.Err)
		}
		res := svc.Refresh(cmd.Context())
		return printRefresh(res.TraceID, res.Success, res.Count, res.Err)
	},
}

func printRefresh(traceID string, success bool, count int, err error) error {
	if !success {
		if err == nil {
			err = eris.New("refresh failed")
		}
		return eris.Wrapf(err, "refresh %s", traceID)
	}
	fmt.Printf("refresh complete trace=%s sponsors=%d\n", traceID, count)
	return nil
}

var registerStatusCmd = &cobra.Command{
	Use:   "register:status",
	Short: "Show the stored register and recent refresh runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		st, err := db.Status(cmd.Context())
		if err != nil {
			return err
		}
		last := "never"
		if st.LastUpdated != nil {
			last = st.LastUpdated.Local().Format(time.RFC1123)
		}
		fmt.Printf("last updated: %s\ntotal sponsors: %d\nenabled: %t\n", last, st.TotalCount, st.Enabled)

		runs, err := db.ListRefreshRuns(cmd.Context(), 5)
		if err != nil {
			return err
		}
		for _, run := range runs {
			status := "ok"
			if !run.Success {
				status = "failed: " + run.Error
			}
			fmt.Printf("  %s trace=%s count=%d %s\n", run.StartedAt, run.TraceID, run.Count, status)
		}
		return nil
	},
}

var registerSearchCmd = &cobra.Command{
	Use:   "register:search <name>",
	Short: "Check whether a company name is a licensed sponsor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := util.NormalizeCompanyName(args[0])
		if key == "" {
			fmt.Printf("%q has no comparable name\n", args[0])
			return nil
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		rec, err := db.GetSponsor(cmd.Context(), key)
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Printf("✗ %q (key %q) not found in register\n", args[0], key)
			return nil
		}
		fmt.Printf("✓ %s is a licensed sponsor", rec.Name)
		if rec.Town != "" {
			fmt.Printf(" (%s)", rec.Town)
		}
		if rec.Route != "" {
			fmt.Printf(" route=%s", rec.Route)
		}
		fmt.Println()
		return nil
	},
}

var exportOut string

var registerExportCmd = &cobra.Command{
	Use:   "register:export",
	Short: "Write the stored register to an xlsx file",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := db.ListSponsors(cmd.Context())
		if err != nil {
			return err
		}
		out := exportOut
		if out == "" {
			out = filepath.Join(cfg.OutputDir, "sponsors.xlsx")
		}
		if err := report.ExportSponsorsToXLSX(records, out); err != nil {
			return err
		}
		fmt.Printf("exported %d sponsors to %s\n", len(records), out)
		return nil
	},
}

func init() {
	registerRefreshCmd.Flags().BoolVar(&refreshForce, "force", false, "download even if the register is fresh")
	registerExportCmd.Flags().StringVar(&exportOut, "out", "", "output xlsx path (default OUTPUT_DIR/sponsors.xlsx)")
	rootCmd.AddCommand(registerRefreshCmd, registerStatusCmd, registerSearchCmd, registerExportCmd)
}
