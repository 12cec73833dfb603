// Package main provides the eavdb CLI entry point.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/eavdb/pkg/block"
	"github.com/orneryd/eavdb/pkg/config"
	"github.com/orneryd/eavdb/pkg/metrics"
	"github.com/orneryd/eavdb/pkg/program"
	"github.com/orneryd/eavdb/pkg/providers"
	"github.com/orneryd/eavdb/pkg/runtime"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "eavdb",
		Short: "eavdb - incrementally maintained triple store",
		Long: `eavdb evaluates rule programs over an in-memory entity/attribute/value
store. Blocks are re-run only when facts they depend on change, until
nothing changes any more.

Features:
  • Generic Join over EAV, AVE and node orderings
  • Aggregates, sorting, negation and choice
  • Bind actions retract what they no longer derive`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "eavdb v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a program to fixpoint and print the changes",
		RunE:  runProgram,
	}
	runCmd.Flags().String("program", "", "Program file (YAML)")
	runCmd.Flags().String("config", "", "Config file (default: search ~/.eavdb, ./config.yaml, ./eavdb.yaml)")
	runCmd.Flags().String("format", "yaml", "Output format: yaml, json")
	runCmd.Flags().Bool("metrics", false, "Print Prometheus metrics to stderr after the run")
	_ = runCmd.MarkFlagRequired("program")
	rootCmd.AddCommand(runCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Build every block of a program and report planning errors",
		RunE:  runCheck,
	}
	checkCmd.Flags().String("program", "", "Program file (YAML)")
	checkCmd.Flags().String("config", "", "Config file")
	_ = checkCmd.MarkFlagRequired("program")
	rootCmd.AddCommand(checkCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "functions",
		Short: "List the functions and aggregates programs can use",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range providers.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	})

	return rootCmd
}

// loadConfig reads path, or the first config file found, and applies the
// environment on top.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupLogging points the standard logger at cfg.Logging.Output. The
// returned func closes a log file, if one was opened.
func setupLogging(cfg *config.Config) (func(), error) {
	switch cfg.Logging.Output {
	case "", "stderr":
		log.SetOutput(os.Stderr)
	case "stdout":
		log.SetOutput(os.Stdout)
	default:
		f, err := os.OpenFile(cfg.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output: %w", err)
		}
		log.SetOutput(f)
		return func() {
			log.SetOutput(os.Stderr)
			f.Close()
		}, nil
	}
	return func() {}, nil
}

func loadProgram(cmd *cobra.Command) (*program.Program, *config.Config, error) {
	programPath, _ := cmd.Flags().GetString("program")
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	p, err := program.LoadFile(programPath)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range p.Scopes {
		if s != cfg.Evaluation.DefaultScope && !slices.Contains(cfg.Evaluation.Scopes, s) {
			cfg.Evaluation.Scopes = append(cfg.Evaluation.Scopes, s)
		}
	}
	return p, cfg, nil
}

// reportBuild prints every planning error and returns a summary error.
func reportBuild(w io.Writer, err error) error {
	var batch *block.BatchError
	if errors.As(err, &batch) {
		fmt.Fprintln(w, batch.ErrorList())
		return fmt.Errorf("%d blocks failed to build", len(batch.Errors))
	}
	return err
}

func runCheck(cmd *cobra.Command, args []string) error {
	p, cfg, err := loadProgram(cmd)
	if err != nil {
		return err
	}
	blocks, seeds, err := p.Build(cfg)
	if err != nil {
		return reportBuild(cmd.ErrOrStderr(), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %d blocks, %d facts\n", len(blocks), len(seeds))
	for _, b := range blocks {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d strata, %d variables\n", b.Name, len(b.Strata), len(b.Vars))
	}
	return nil
}

func runProgram(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	withMetrics, _ := cmd.Flags().GetBool("metrics")
	if format != "yaml" && format != "json" {
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}

	p, cfg, err := loadProgram(cmd)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	blocks, seeds, err := p.Build(cfg)
	if err != nil {
		return reportBuild(cmd.ErrOrStderr(), err)
	}

	opts := []runtime.Option{runtime.WithConfig(cfg)}
	var reg *prometheus.Registry
	if withMetrics || cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		opts = append(opts, runtime.WithMetrics(metrics.New(reg, cfg.Metrics.Namespace)))
	}

	ev := runtime.New(opts...)
	defer ev.Close()
	if err := ev.RegisterDatabase(cfg.Evaluation.DefaultScope, runtime.NewDatabase(blocks...)); err != nil {
		return err
	}
	ch, err := ev.ExecuteActions(seeds, nil)
	if err != nil {
		return err
	}

	if err := writeResult(cmd.OutOrStdout(), format, ch.Result()); err != nil {
		return err
	}
	if reg != nil {
		return writeMetrics(cmd.ErrOrStderr(), reg)
	}
	return nil
}

func writeResult(w io.Writer, format string, v any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
