package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/greenbyte/internal/api"
	"github.com/joshsymonds/greenbyte/internal/auth"
	"github.com/joshsymonds/greenbyte/internal/carbon"
	"github.com/joshsymonds/greenbyte/internal/credstore"
	"github.com/joshsymonds/greenbyte/internal/metrics"
	"github.com/joshsymonds/greenbyte/internal/report"
	"github.com/joshsymonds/greenbyte/internal/runtime"
	"github.com/joshsymonds/greenbyte/internal/summary"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (OAuth round trip and /emails/summary)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = args
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	oauthCfg, err := auth.LoadConfig(a.cfg.Google.CredentialsFile, a.cfg.Google.RedirectURL)
	if err != nil {
		return err
	}

	limiter, stop := newLimiter(a.cfg.Analysis.RPS)
	defer stop()

	m := metrics.New(metricsNamespace)
	mgr := credstore.NewManager(store, a.logger)
	factory := runtime.GoogleFactory{Config: a.clientConfig(limiter)}
	pipe := a.newPipeline(mgr, factory, m)

	srv := api.NewServer(api.Options{
		FrontendURL: a.cfg.Server.FrontendURL,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, pipe, auth.NewFlow(oauthCfg), mgr, m, a.logger)
	httpSrv := api.NewHTTPServer(a.cfg.Server.Addr, srv.Router())

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.cfg.Server.Addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	a.logger.Info("shutting down")
	if err := api.GracefulShutdown(httpSrv, a.cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type analyzeFlags struct {
	jsonOut     string
	format      string
	gmailctlDir string
}

func (a *app) analyzeCmd() *cobra.Command {
	var flags analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the connected mailbox and print the footprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = args
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			sum, err := a.analyze(ctx, flags)
			if err != nil {
				return err
			}
			return a.emit(cmd, sum, flags)
		},
	}
	cmd.Flags().StringVar(&flags.jsonOut, "json", "", "also write the JSON summary to this relative path")
	cmd.Flags().StringVar(&flags.format, "format", "human", "stdout format: human or json")
	cmd.Flags().StringVar(&flags.gmailctlDir, "gmailctl-dir", "", "reuse gmailctl credentials from this directory")
	return cmd
}

func (a *app) analyze(ctx context.Context, flags analyzeFlags) (summary.Summary, error) {
	limiter, stop := newLimiter(a.cfg.Analysis.RPS)
	defer stop()

	if flags.gmailctlDir != "" {
		client, err := runtime.NewGmailctlClient(ctx, flags.gmailctlDir, a.clientConfig(limiter))
		if err != nil {
			return summary.Summary{}, err
		}
		return a.newPipeline(nil, nil, nil).RunWithClient(ctx, client)
	}

	store, err := a.openStore()
	if err != nil {
		return summary.Summary{}, err
	}
	mgr := credstore.NewManager(store, a.logger)
	factory := runtime.GoogleFactory{Config: a.clientConfig(limiter)}
	sum, err := a.newPipeline(mgr, factory, nil).Run(ctx, credstore.DefaultAccount)
	var reauth *credstore.ReauthRequiredError
	if errors.Is(err, credstore.ErrNotAuthenticated) || errors.As(err, &reauth) {
		return summary.Summary{}, fmt.Errorf("%w (run `greenbyte serve` and visit /auth)", err)
	}
	return sum, err
}

func (a *app) emit(cmd *cobra.Command, sum summary.Summary, flags analyzeFlags) error {
	out := cmd.OutOrStdout()
	switch flags.format {
	case "json":
		if err := report.Encode(sum, out); err != nil {
			return err
		}
	case "human", "":
		if err := report.PrintHuman(sum, out); err != nil {
			return fmt.Errorf("print report: %w", err)
		}
	default:
		return fmt.Errorf("unknown format %q", flags.format)
	}
	if flags.jsonOut == "" {
		return nil
	}
	if err := report.WriteJSON(sum, flags.jsonOut); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

func (a *app) estimateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "estimate <megabytes>",
		Short: "Estimate the annual footprint of storing the given amount of mail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mb, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("parse megabytes %q: %w", args[0], err)
			}
			if mb < 0 {
				return fmt.Errorf("megabytes must not be negative, got %g", mb)
			}
			est := carbon.Calculate(mb)
			if !asJSON {
				return report.PrintEstimate(est, cmd.OutOrStdout())
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(est)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the estimate as JSON")
	return cmd
}
