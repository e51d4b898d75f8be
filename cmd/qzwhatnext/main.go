// qzwhatnext is the planner daemon: an HTTP API, a background sync worker,
// and a few operational subcommands over the same wiring.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qnz18/qzwhatnext/internal/api"
	"github.com/qnz18/qzwhatnext/internal/app"
	identityservices "github.com/qnz18/qzwhatnext/internal/identity/application/services"
	identitydomain "github.com/qnz18/qzwhatnext/internal/identity/domain"
	"github.com/qnz18/qzwhatnext/pkg/config"
)

func main() {
	root := &cobra.Command{
		Use:           "qzwhatnext",
		Short:         "Deterministic task planner with Google Calendar sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), workerCmd(), migrateCmd(), userCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// bootstrap loads config, builds the logger, and wires the container.
func bootstrap(ctx context.Context) (*app.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	return app.New(ctx, cfg, logger)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx, cancel
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			c, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			srv := &http.Server{
				Addr:              c.Config.APIAddr,
				Handler:           api.NewServer(c.Deps).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				c.Logger.Info("http server listening", slog.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			c.Logger.Info("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background sync worker",
		Long: "Periodically materializes recurring task occurrences and reconciles\n" +
			"the schedule onto Google Calendar for every connected user.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			c, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			c.Logger.Info("worker started",
				slog.Duration("interval", c.Config.ReconcileInterval))

			ticker := time.NewTicker(c.Config.ReconcileInterval)
			defer ticker.Stop()

			// Startup jitter so restarted replicas don't sweep in lockstep.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(rand.N(5 * time.Second)):
			}

			runSweep(ctx, c)
			for {
				select {
				case <-ctx.Done():
					c.Logger.Info("worker stopped")
					return nil
				case <-ticker.C:
					runSweep(ctx, c)
				}
			}
		},
	}
}

// runSweep rolls recurrence windows forward, then pushes the fresh plan to
// the calendar for every user with a stored grant.
func runSweep(ctx context.Context, c *app.Container) {
	now := time.Now().UTC()
	userIDs, err := c.Series.ActiveUserIDs(ctx)
	if err != nil {
		c.Logger.Error("failed to list series users", slog.String("error", err.Error()))
	}
	for _, userID := range userIDs {
		created, err := c.Materializer.Materialize(ctx, userID, now, now.Add(c.Config.Horizon()))
		if err != nil {
			c.Logger.Error("materialization failed",
				slog.String("user_id", userID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if created > 0 {
			c.Logger.Info("materialized occurrences",
				slog.String("user_id", userID.String()),
				slog.Int("created", created))
		}
	}

	connected, err := c.OAuth.ConnectedUsers(ctx)
	if err != nil {
		c.Logger.Error("failed to list connected users", slog.String("error", err.Error()))
		return
	}
	for _, userID := range connected {
		result, err := c.Reconciler.Reconcile(ctx, userID)
		if err != nil {
			if errors.Is(err, identityservices.ErrCalendarNotConnected) {
				continue
			}
			c.Logger.Error("reconcile failed",
				slog.String("user_id", userID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if result.EventsCreated+result.EventsPatched+result.EventsDeleted+result.BlocksImported > 0 {
			c.Logger.Info("calendar reconciled",
				slog.String("user_id", userID.String()),
				slog.Int("created", result.EventsCreated),
				slog.Int("patched", result.EventsPatched),
				slog.Int("deleted", result.EventsDeleted),
				slog.Int("imported", result.BlocksImported))
		}
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			c, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			c.Close()
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	userRoot := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var email string
	var withShortcut bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user (or reuse an existing one) and print credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			c, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			u, err := c.Users.FindByEmail(ctx, email)
			if errors.Is(err, identitydomain.ErrUserNotFound) {
				u, err = identitydomain.NewUser(email)
				if err != nil {
					return err
				}
				if err := c.Users.Save(ctx, u); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}

			out := map[string]string{"user_id": u.ID().String(), "email": u.Email()}
			if token, err := c.Auth.IssueJWT(u.ID()); err == nil {
				out["jwt"] = token
			}
			if withShortcut {
				name := "cli"
				token, err := c.Auth.IssueShortcutToken(ctx, u.ID(), &name)
				if err != nil {
					return err
				}
				out["shortcut_token"] = token
			}
			return json.NewEncoder(os.Stdout).Encode(out)
		},
	}
	create.Flags().StringVar(&email, "email", "", "user email")
	create.Flags().BoolVar(&withShortcut, "shortcut-token", false, "also mint an opaque shortcut token")
	_ = create.MarkFlagRequired("email")

	userRoot.AddCommand(create)
	return userRoot
}
