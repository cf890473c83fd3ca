package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hupe1980/banksim"
	"github.com/hupe1980/banksim/bank"
	"github.com/hupe1980/banksim/blobstore"
	s3store "github.com/hupe1980/banksim/blobstore/s3"
	"github.com/hupe1980/banksim/resource"
	"github.com/hupe1980/banksim/sink"
	"github.com/hupe1980/banksim/tag"
)

func newRootCommand() *cobra.Command {
	flags := defaultFileConfig()
	var configPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:           "banksim --templates bank.csv --proposals injections.csv --output results.dat",
		Short:         "Compute noise-weighted matches between two waveform collections",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := flags
			if configPath != "" {
				fileCfg, err := loadFileConfig(configPath)
				if err != nil {
					return err
				}
				// Explicit flags win over the config file.
				fileCfg.overrideFrom(cmd, flags)
				cfg = fileCfg
			}
			if cfg.Templates == "" || cfg.Proposals == "" {
				return fmt.Errorf("both --templates and --proposals are required")
			}
			return run(cmd.Context(), cfg, verbose)
		},
	}

	cmd.Flags().StringVar(&flags.Templates, "templates", "", "template parameter table (CSV/TSV)")
	cmd.Flags().StringVar(&flags.Proposals, "proposals", "", "proposal parameter table (CSV/TSV)")
	cmd.Flags().StringVar(&flags.Output, "output", "results.dat", "output destination (file path or s3://bucket/key)")
	cmd.Flags().IntVar(&flags.TemplateBatch, "template-batch", 100, "template batch size")
	cmd.Flags().IntVar(&flags.ProposalBatch, "proposal-batch", 100, "proposal batch size")
	cmd.Flags().StringVar(&flags.TemplateMethod, "template-method", "spa", "template generation method")
	cmd.Flags().StringVar(&flags.ProposalMethod, "proposal-method", "spa", "proposal generation method")
	cmd.Flags().Float64Var(&flags.MassWindow, "mass-window", 1.0, "chirp-mass pruning window in solar masses (0 disables)")
	cmd.Flags().Float64Var(&flags.DurationWindow, "duration-window", 0, "chirp-time pruning window in seconds (0 disables)")
	cmd.Flags().Float64Var(&flags.FLow, "f-low", 15.0, "low-frequency cutoff in Hz")
	cmd.Flags().Float64Var(&flags.Duration, "duration", 128, "signal duration in seconds")
	cmd.Flags().Float64Var(&flags.SampleRate, "sample-rate", 4096, "implied sample rate in Hz")
	cmd.Flags().StringVar(&flags.PSD, "psd", "analytic", "noise spectrum model (analytic, flat)")
	cmd.Flags().BoolVar(&flags.Stream, "stream", false, "append each record immediately instead of buffering")
	cmd.Flags().BoolVar(&flags.Tolerate, "tolerate-failures", false, "record failed syntheses as -2 instead of aborting")
	cmd.Flags().BoolVar(&flags.Compress, "compress", false, "zstd-compress the buffered output artifact")
	cmd.Flags().Int64Var(&flags.CacheMemoryMB, "cache-memory-mb", 0, "hard cache memory budget in MiB (0 = unlimited)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	return cmd
}

func run(ctx context.Context, cfg fileConfig, verbose bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := banksim.NewTextLogger(level).WithRun(uuid.NewString())

	templates, err := bank.Load(cfg.Templates)
	if err != nil {
		return err
	}
	proposals, err := bank.Load(cfg.Proposals)
	if err != nil {
		return err
	}

	// Synthetic tags are assigned once at ingestion, before any matching.
	collectionName := func(path string) string {
		base := filepath.Base(path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	tag.Assign(collectionName(cfg.Templates), templates)
	tag.Assign(collectionName(cfg.Proposals), proposals)

	rc := resource.NewController(resource.Config{
		CacheMemoryBytes: cfg.CacheMemoryMB << 20,
	})

	out, err := openSink(ctx, cfg, rc)
	if err != nil {
		return err
	}
	defer out.Close()

	runner, err := banksim.New(banksim.Config{
		TemplateBatchSize: cfg.TemplateBatch,
		ProposalBatchSize: cfg.ProposalBatch,
		TemplateMethod:    cfg.TemplateMethod,
		ProposalMethod:    cfg.ProposalMethod,
		MassWindow:        cfg.MassWindow,
		DisableMassWindow: cfg.MassWindow == 0,
		DurationWindow:    cfg.DurationWindow,
		FLow:              cfg.FLow,
		Duration:          cfg.Duration,
		SampleRate:        cfg.SampleRate,
		PSDModel:          cfg.PSD,
		TolerateFailures:  cfg.Tolerate,
	}, templates, proposals, out,
		banksim.WithLogger(logger),
		banksim.WithResourceController(rc),
	)
	if err != nil {
		return err
	}

	stats, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	printSummary(stats)
	return nil
}

// openSink picks the output mode: streaming appends to a local file,
// buffered writes one artifact through a blobstore (local or S3).
func openSink(ctx context.Context, cfg fileConfig, rc *resource.Controller) (sink.Sink, error) {
	if cfg.Stream {
		if strings.HasPrefix(cfg.Output, "s3://") {
			return nil, fmt.Errorf("streaming output requires a local file destination")
		}
		return sink.NewStreaming(ctx, cfg.Output, rc)
	}

	var opts []sink.BufferedOption
	if cfg.Compress {
		opts = append(opts, sink.WithZstd())
	}

	if rest, ok := strings.CutPrefix(cfg.Output, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid S3 destination %q, want s3://bucket/key", cfg.Output)
		}
		store, err := s3store.NewStoreFromEnv(ctx, bucket, "")
		if err != nil {
			return nil, err
		}
		return sink.NewBuffered(store, key, opts...), nil
	}

	dir, name := filepath.Split(cfg.Output)
	if dir == "" {
		dir = "."
	}
	return sink.NewBuffered(blobstore.NewLocalStore(dir), name, opts...), nil
}

func printSummary(stats *banksim.RunStats) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Pairs", stats.PairsTotal.Load()},
		{"Pruned", stats.PairsPruned.Load()},
		{"Self matches", stats.PairsSelf.Load()},
		{"Evaluated", stats.PairsEvaluated.Load()},
		{"Failed", stats.PairsFailed.Load()},
		{"Waveforms synthesized", stats.Synthesized.Load()},
		{"Cache hits", stats.CacheHits.Load()},
		{"Failed templates", len(stats.FailedTemplates())},
		{"Failed proposals", len(stats.FailedProposals())},
	})
	t.Render()
}
