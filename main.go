// repograph builds code graphs of Python repositories: entity and call
// graphs of the source tree, commit graphs of its history and per-function
// change histories.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phobologic/repograph/internal/config"
	"github.com/phobologic/repograph/internal/logging"
	"github.com/phobologic/repograph/internal/metrics"
)

var version = "dev"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	v          *viper.Viper
	configPath string
	stats      bool

	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: config.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "repograph",
		Short:         "Build code graphs of Python repositories",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("repograph {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default <root>/"+config.FileName+")")
	pf.BoolVar(&a.stats, "stats", false, "log processing counters when done")
	pf.String("include", "", "only use files whose directory contains this marker")
	pf.Int("workers", 0, "parsing goroutines (0 means GOMAXPROCS)")
	pf.Int("max-commits", 0, "limit history to the newest commits (0 means all)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (text, json)")

	for key, flag := range map[string]string{
		"include":             "include",
		"workers":             "workers",
		"history.max_commits": "max-commits",
		"log.level":           "log-level",
		"log.format":          "log-format",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		newGraphCmd(a),
		newHistoryCmd(a),
		newEvolutionCmd(a),
		newRecordsCmd(a),
		newInitCmd(a),
	)
	return root
}

// setup loads configuration for the repository at root and builds the
// logger and metrics.
func (a *app) setup(root string) error {
	cfg, err := config.Load(a.v, root, a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
		Output: a.stderr,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)
	return nil
}

// finish logs the collected counters when --stats is set.
func (a *app) finish() {
	if !a.stats || a.registry == nil {
		return
	}
	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Warn("gathering metrics", slog.Any("error", err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			attrs := []any{slog.String("metric", mf.GetName())}
			for _, lp := range m.GetLabel() {
				attrs = append(attrs, slog.String(lp.GetName(), lp.GetValue()))
			}
			switch {
			case m.GetCounter() != nil:
				attrs = append(attrs, slog.Float64("value", m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				attrs = append(attrs,
					slog.Uint64("count", m.GetHistogram().GetSampleCount()),
					slog.Float64("sum", m.GetHistogram().GetSampleSum()))
			}
			a.logger.Info("stats", attrs...)
		}
	}
}

// rootArg returns the absolute repository root named by args, "." when
// absent.
func rootArg(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	return abs, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func checkFormat(format string, allowed ...string) error {
	for _, f := range allowed {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("unknown format %q", format)
}
