// reelsctl: lệnh vận hành cho edu-reels (kiểm tra DB, migrate, resume, cấp token)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/vnkhanh/edu-reels-backend/app"
	"github.com/vnkhanh/edu-reels-backend/config"
	"github.com/vnkhanh/edu-reels-backend/logger"
	"github.com/vnkhanh/edu-reels-backend/utils"
)

var errMissingTables = errors.New("missing tables")

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var sqlitePath string

	root := &cobra.Command{
		Use:           "reelsctl",
		Short:         "Operations CLI for the edu-reels backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "use a SQLite file instead of the DB_* postgres settings")

	open := func() (*gorm.DB, error) {
		if sqlitePath != "" {
			return config.ConnectSQLite(sqlitePath)
		}
		return config.ConnectDatabase(config.Load())
	}

	root.AddCommand(
		newCheckDBCmd(open),
		newMigrateCmd(open),
		newResumeCmd(),
		newTokenCmd(),
	)
	return root
}

func newCheckDBCmd(open func() (*gorm.DB, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "check-db",
		Short: "Connect to the database and report missing tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			existing, missing, err := config.MissingTables(db)
			if err != nil {
				return fmt.Errorf("list tables: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Connected. %d tables found.\n", len(existing))
			for _, t := range existing {
				fmt.Fprintf(out, "  - %s\n", t)
			}
			if len(missing) > 0 {
				fmt.Fprintf(out, "Missing tables: %v\n", missing)
				return fmt.Errorf("%w: run `reelsctl migrate`", errMissingTables)
			}
			fmt.Fprintln(out, "All expected tables exist.")
			return nil
		},
	}
}

func newMigrateCmd(open func() (*gorm.DB, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			if err := config.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migration complete.")
			return nil
		},
	}
}

func newResumeCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Run one resume pass: poll and ingest units that have a task but no video",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log, err := logger.New(cfg.LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			application, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			n := utils.RunResumePass(ctx, application.Repo, application.Orch, log)
			fmt.Fprintf(cmd.OutOrStdout(), "Resumed %d unit(s).\n", n)
			return application.Shutdown(context.Background())
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Minute, "maximum time for the pass")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with API_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := utils.GenerateToken(config.Load().JWTSecret, subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "reelsctl", "token subject")
	cmd.Flags().StringVar(&role, "role", "admin", "token role")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
