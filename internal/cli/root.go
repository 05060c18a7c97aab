// Package cli implements the drover command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessellated/drover/internal/bundle"
	"github.com/tessellated/drover/internal/config"
	"github.com/tessellated/drover/internal/orch"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the drover CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "drover",
		Short: "Batched file operation orchestrator",
		Long: `drover previews and executes batches of file operations (rename, move,
bundle) inside allow-listed directory roots, with durable job state,
per-job journals, and a hash-chained audit log.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			configureLogging(opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "drover.yaml", "path to config file")

	cmd.AddCommand(NewPreviewCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// newOrchestrator loads the config file and builds an orchestrator from it.
func newOrchestrator(opts *RootOptions) (*orch.Orchestrator, *config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	o, err := orch.New(orch.Params{
		Roots:          cfg.Roots,
		StateDir:       cfg.StateDir,
		Workers:        cfg.Workers,
		BatchItemLimit: cfg.BatchItemLimit,
		BundleLimits:   bundleLimits(cfg),
	})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	return o, cfg, nil
}

func bundleLimits(cfg *config.Config) bundle.Limits {
	return bundle.Limits{
		MaxFileBytes:  cfg.Bundle.MaxFileBytes,
		MaxTotalBytes: cfg.Bundle.MaxTotalBytes,
		TimeBudget:    cfg.Bundle.TimeBudget,
	}
}
