package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/dwell/internal/store"
	"github.com/andresmejia3/dwell/internal/utils"
	"github.com/spf13/cobra"
)

// needsDB marks commands that cannot run without the run history database.
const needsDB = "needs-db"

var (
	// DB is the global database connection shared by subcommands. It stays
	// nil for a scan when no database is configured.
	DB *store.Store
	// dbURL is the connection string
	dbURL string
	// logLevel overrides log_level from the configuration when set
	logLevel string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "dwell",
	Short:         "Occupancy heatmaps from a camera or a recorded video",
	Version:       Version, // This enables the --version flag
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := setupLogger(logLevel, ""); err != nil {
			return err
		}

		url, explicit := resolveDBURL()
		if !explicit && cmd.Annotations[needsDB] == "" {
			// Scans only record history when a database was asked for
			return nil
		}

		// Initialize DB connection
		var err error
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
		}
		closeLogFile()
	},
}

// resolveDBURL returns the connection string from --db or the POSTGRES_*
// environment, and whether either was actually configured.
func resolveDBURL() (string, bool) {
	if dbURL != "" {
		return dbURL, true
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name), true
	}
	// Fallback to local default if no env vars are present
	return "postgres://localhost:5432/dwell", false
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// A scan runs to completion after the first signal; a second one
		// gets the default behavior and kills the process.
		<-ctx.Done()
		stop()
	}()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		utils.Die("Command failed", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for run history (default: $POSTGRES_HOST or postgres://localhost:5432/dwell)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides log_level)")
}
