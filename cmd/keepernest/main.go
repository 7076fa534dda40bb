// Command keepernest runs the IT asset register: the HTTP API, the expiry
// sweeper and one-shot maintenance commands.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"keepernest/internal/api"
	"keepernest/internal/config"
	"keepernest/internal/core"
	"keepernest/internal/housekeeping"
	"keepernest/internal/platform/logger"
	"keepernest/pkg/domain"
)

var version = "dev"

const shutdownGrace = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	envFile    string
	traceJSON  bool
}

func rootCmd() *cobra.Command {
	var g globalFlags
	cmd := &cobra.Command{
		Use:           "keepernest",
		Short:         "IT asset register",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded when present")
	cmd.PersistentFlags().BoolVar(&g.traceJSON, "trace-json", false, "write one JSON trace line per service operation to stderr")

	cmd.AddCommand(serveCmd(&g), sweepCmd(&g), exportCmd(&g), bootstrapAdminCmd(&g), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "keepernest %s\n", version)
		},
	}
}

// withApp loads configuration, builds the app and runs fn with it.
func withApp(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(config.Options{File: g.configPath, DotEnv: g.envFile})
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts appOptions
	if g.traceJSON {
		opts.traceJSON = cmd.ErrOrStderr()
	}
	a, err := newApp(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			log.Warn("shutdown incomplete", "error", err)
		}
	}()
	return fn(ctx, a)
}

func serveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the expiry sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, serve)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	if a.cfg.Auth.JWTSecret == "" {
		return errors.New("KEEPERNEST_JWT_SECRET is required to serve the API")
	}
	router := api.NewRouter(api.Deps{
		Register: a.svc,
		Exporter: a.exporter,
		Log:      a.log,
		Metrics:  a.metrics,
		Version:  version,
	})
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if a.cfg.Sweep.Enabled {
		sweeper := housekeeping.NewSweeper(a.svc, a.cfg.Sweep.Interval, a.log)
		go func() { _ = sweeper.Run(ctx) }()
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.HTTPAddr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sweepCmd(g *globalFlags) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reset every asset whose expiry boundary has passed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = parsed
			}
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				report, err := a.svc.SweepExpired(ctx, domain.System, now)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "sweep as of this RFC 3339 time instead of now")
	return cmd
}

func exportCmd(g *globalFlags) *cobra.Command {
	var status, assetType string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the asset register as CSV to blob storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.AssetFilter{AssetType: domain.AssetType(assetType)}
			if status != "" {
				parsed, ok := domain.ParseAssetStatus(status)
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				filter.Status = parsed
			}
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				res, err := a.exporter.Export(ctx, domain.System, filter)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only export assets in this status")
	cmd.Flags().StringVar(&assetType, "type", "", "only export assets of this type")
	return cmd
}

func bootstrapAdminCmd(g *globalFlags) *cobra.Command {
	var in core.NewEmployee
	var password string
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the first admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(config.EnvPrefix + "ADMIN_PASSWORD")
			}
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				created, err := a.svc.BootstrapAdmin(ctx, in, password)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), created)
			})
		},
	}
	cmd.Flags().StringVar(&in.EmployeeID, "id", "", "employee id of the admin")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "initial password (default: KEEPERNEST_ADMIN_PASSWORD or EMPLOYEE_<id>)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
