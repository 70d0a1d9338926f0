// Package cli wires configuration and services into the greenbyte commands.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/greenbyte/internal/config"
	"github.com/joshsymonds/greenbyte/internal/credstore"
	"github.com/joshsymonds/greenbyte/internal/metrics"
	"github.com/joshsymonds/greenbyte/internal/rate"
	"github.com/joshsymonds/greenbyte/internal/runtime"
	"github.com/joshsymonds/greenbyte/internal/summary"
)

const metricsNamespace = "greenbyte"

// app carries state shared by subcommands once the root has loaded config.
type app struct {
	cfgPath string
	version string
	cfg     config.Config
	logger  *slog.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{version: version}
	root := &cobra.Command{
		Use:           "greenbyte",
		Short:         "Estimate the carbon footprint of a Gmail mailbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = args
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = runtime.NewLogger(cfg.Log.Level, cfg.Log.Format)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		a.serveCmd(),
		a.analyzeCmd(),
		a.estimateCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = args
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "greenbyte %s\n", a.version)
			return err
		},
	}
}

func (a *app) openStore() (credstore.Store, error) {
	if a.cfg.Store.Backend == config.BackendKeyring {
		ring, err := credstore.OpenKeyring(a.cfg.Store.Dir, a.cfg.Store.KeyringPassword)
		if err != nil {
			return nil, err
		}
		return credstore.NewKeyringStore(ring), nil
	}
	return credstore.NewFileStore(a.cfg.Store.Dir), nil
}

// newLimiter returns the outbound limiter and its stop func; rps <= 0
// disables limiting.
func newLimiter(rps int) (rate.Limiter, func()) {
	if rps <= 0 {
		return rate.Unlimited{}, func() {}
	}
	bucket := rate.NewTokenBucket(rps, rps)
	return bucket, bucket.Stop
}

func (a *app) clientConfig(limiter rate.Limiter) runtime.ClientConfig {
	return runtime.ClientConfig{
		Limiter:     limiter,
		Fanout:      a.cfg.Analysis.Fanout,
		CallTimeout: a.cfg.Analysis.CallTimeout,
	}
}

func (a *app) newPipeline(creds summary.CredentialSource, factory runtime.Factory, m *metrics.Metrics) *summary.Pipeline {
	p := summary.NewPipeline(creds, factory, a.logger)
	p.Options = a.cfg.AnalyzerOptions()
	if m != nil {
		p.Observer = m
		p.Recorder = m
	}
	return p
}
