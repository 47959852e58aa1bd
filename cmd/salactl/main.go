// salactl is the operator CLI of the reading room service. It talks to the
// database directly, so it runs where the service runs.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/n-rosenthal/sala-de-leitura/internal/audit"
	"github.com/n-rosenthal/sala-de-leitura/internal/consistency"
	"github.com/n-rosenthal/sala-de-leitura/internal/platform/db"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "salactl",
		Short:         "Operator tooling for the reading room service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to config file")

	root.AddCommand(scanCmd(), repairCmd(), logsCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func open() (*db.Config, *sql.DB, error) {
	cfg, err := db.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	return cfg, conn, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Report books whose status disagrees with the loan ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := open()
			if err != nil {
				return err
			}
			defer conn.Close()

			svc := consistency.NewService(conn, nil, cfg.LockWait())
			report, err := svc.Scan(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
			if !report.Clean() {
				os.Exit(2)
			}
			return nil
		},
	}
}

func repairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Correct drifted book statuses from the loan ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := open()
			if err != nil {
				return err
			}
			defer conn.Close()

			recorder := audit.NewService(conn)
			svc := consistency.NewService(conn, recorder, cfg.LockWait())
			actor := consistency.Actor{AccountID: "salactl"}

			report, err := svc.Repair(cmd.Context(), actor)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}

func logsCmd() *cobra.Command {
	var (
		action string
		limit  int
		since  string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print recent audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := open()
			if err != nil {
				return err
			}
			defer conn.Close()

			var f audit.LogFilter
			if action != "" {
				a := audit.Action(action)
				f.Action = &a
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("--since must be YYYY-MM-DD: %w", err)
				}
				f.From = &t
			}

			svc := audit.NewService(conn)
			logs, _, err := svc.List(cmd.Context(), f, audit.Page{Limit: limit, Order: "desc"})
			if err != nil {
				return err
			}
			return printJSON(logs)
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "filter by action kind")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to print")
	cmd.Flags().StringVar(&since, "since", "", "only entries on or after this date (YYYY-MM-DD)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := open()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := db.Migrate(ctx, conn); err != nil {
				return err
			}
			fmt.Println("schema is up to date")
			return nil
		},
	}
}
