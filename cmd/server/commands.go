package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/timesheet-engine/api"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/remote"
	"github.com/warp/timesheet-engine/timesheet"
	"go.uber.org/zap"
)

// =============================================================================
// SERVE
// =============================================================================

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run scheduled sync passes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		handler := api.NewHandler(a.service, a.runner, a.loc, a.periods, logger.Named("api"))
		handler.Source = a.source
		handler.ResetStore = a.store.Reset

		opts := api.RouterOptions{CORSOrigins: cfg.Server.CORSOrigins, Logger: logger.Named("http")}
		if cfg.Auth.Enabled {
			opts.Auth = api.NewAuthenticator(cfg.Auth.JWTSecret)
		} else {
			logger.Warn("auth disabled, every request runs as the local admin")
		}

		var scheduler *api.SyncScheduler
		if a.source != nil {
			scheduler = api.NewSyncScheduler(a.runner, a.source, a.periods, a.loc, logger.Named("scheduler"))
			scheduler.Interval = cfg.Sync.Interval
			scheduler.WindowPeriods = cfg.Sync.WindowPeriods
			scheduler.Start()
		} else {
			logger.Info("no sync source configured, scheduler disabled")
		}

		server := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      api.NewRouter(handler, opts),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server starting", zap.Int("port", cfg.Server.Port))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-errCh:
			if scheduler != nil {
				scheduler.Stop()
			}
			return fmt.Errorf("server failed: %w", err)
		}

		logger.Info("shutting down server")
		if scheduler != nil {
			scheduler.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		logger.Info("server stopped")
		return nil
	},
}

// =============================================================================
// SYNC
// =============================================================================

var syncFlags struct {
	file string
	from string
	to   string
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass and print the per-group outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		source := a.source
		if syncFlags.file != "" {
			source = &remote.FileSource{Path: syncFlags.file, Location: a.loc}
		}
		if source == nil {
			return errors.New("no source: pass --file or configure sync.file / sync.api")
		}

		window, err := syncWindow(a)
		if err != nil {
			return err
		}

		result, err := a.runner.RunFrom(cmd.Context(), source, window)
		if result != nil {
			printSyncResult(cmd, window, result)
		}
		return err
	},
}

func syncWindow(a *app) (generic.Period, error) {
	if syncFlags.from == "" && syncFlags.to == "" {
		return api.DefaultWindow(a.periods, time.Now().In(a.loc), cfg.Sync.WindowPeriods), nil
	}
	start, err := generic.ParseDate(syncFlags.from)
	if err != nil {
		return generic.Period{}, fmt.Errorf("--from: %w", err)
	}
	end, err := generic.ParseDate(syncFlags.to)
	if err != nil {
		return generic.Period{}, fmt.Errorf("--to: %w", err)
	}
	if end.Before(start) {
		return generic.Period{}, errors.New("--to is before --from")
	}
	return generic.Period{Start: start, End: end}, nil
}

func printSyncResult(cmd *cobra.Command, window generic.Period, result *timesheet.SyncResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "window %s: %d groups, %d failed, %d records skipped\n",
		window, len(result.Groups), len(result.Failed()), len(result.Skipped))
	for _, g := range result.Groups {
		status := "ok"
		switch {
		case g.Err != nil:
			status = "FAILED: " + g.Err.Error()
		case g.HeaderDeleted:
			status = "header deleted"
		}
		fmt.Fprintf(out, "  employee %d  %s  upserted=%d deleted=%d flags=%d  %s\n",
			g.EmployeeID, g.WeekStart, g.EntriesUpserted, g.EntriesDeleted, g.FlagsWritten, status)
	}
	for _, err := range result.Skipped {
		fmt.Fprintf(out, "  skipped: %v\n", err)
	}
}

// =============================================================================
// MIGRATE
// =============================================================================

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("schema up to date", zap.String("db", cfg.DB.Path))
		return nil
	},
}

// =============================================================================
// TOKEN
// =============================================================================

var tokenFlags struct {
	id   string
	name string
	role string
	ttl  time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for an editor",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is not set")
		}
		if tokenFlags.id == "" {
			return errors.New("--id is required")
		}
		editor := timesheet.Editor{ID: tokenFlags.id, Name: tokenFlags.name, Role: timesheet.Role(tokenFlags.role)}
		token, err := api.NewAuthenticator(cfg.Auth.JWTSecret).Issue(editor, tokenFlags.ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncFlags.file, "file", "", "payload file with times, users and shifts")
	syncCmd.Flags().StringVar(&syncFlags.from, "from", "", "window start (YYYY-MM-DD)")
	syncCmd.Flags().StringVar(&syncFlags.to, "to", "", "window end, inclusive (YYYY-MM-DD)")

	tokenCmd.Flags().StringVar(&tokenFlags.id, "id", "", "editor id")
	tokenCmd.Flags().StringVar(&tokenFlags.name, "name", "", "editor display name")
	tokenCmd.Flags().StringVar(&tokenFlags.role, "role", string(timesheet.RoleManager), "admin, manager or employee")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 12*time.Hour, "token lifetime")
}
