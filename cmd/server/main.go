/*
main.go - Application entry point

PURPOSE:
  Command-line interface for the timesheet sync engine. Loads
  configuration, wires the ledger store, sync runner and remote source,
  and either serves the HTTP API or runs a one-off command.

COMMANDS:
  serve     HTTP API plus the periodic sync scheduler (default)
  sync      One sync pass from a payload file or the configured source
  migrate   Create or update the SQLite schema
  token     Issue a JWT for an editor (auth.enabled deployments)

CONFIGURATION:
  --config points at a YAML file. Without it ./config/timesheet.yaml and
  ./timesheet.yaml are tried. Every key can be overridden with
  TIMESHEET_<SECTION>_<KEY>, e.g. TIMESHEET_DB_PATH=":memory:".

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sync scheduler (an in-flight pass is cancelled)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the database and Redis connections

EXAMPLES:
  # Serve with defaults
  ./server serve

  # Merge a downloaded batch into the ledger
  ./server sync --file=./times.json --from=2025-12-07 --to=2025-12-20

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings and defaults
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/timesheet-engine/config"
	"github.com/warp/timesheet-engine/logging"
	"go.uber.org/zap"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "Timesheet sync engine",
	Long:         `Pulls clock records from the scheduling system and keeps a local timesheet ledger in sync.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./timesheet.yaml)")
	rootCmd.AddCommand(serveCmd, syncCmd, migrateCmd, tokenCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
