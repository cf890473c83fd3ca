package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// fileConfig is the TOML file form of the run configuration. Field names
// match the command-line flags; flags set explicitly on the command line
// override the file.
type fileConfig struct {
	Templates      string  `toml:"templates"`
	Proposals      string  `toml:"proposals"`
	Output         string  `toml:"output"`
	TemplateBatch  int     `toml:"template_batch"`
	ProposalBatch  int     `toml:"proposal_batch"`
	TemplateMethod string  `toml:"template_method"`
	ProposalMethod string  `toml:"proposal_method"`
	MassWindow     float64 `toml:"mass_window"`
	DurationWindow float64 `toml:"duration_window"`
	FLow           float64 `toml:"f_low"`
	Duration       float64 `toml:"duration"`
	SampleRate     float64 `toml:"sample_rate"`
	PSD            string  `toml:"psd"`
	Stream         bool    `toml:"stream"`
	Tolerate       bool    `toml:"tolerate_failures"`
	Compress       bool    `toml:"compress"`
	CacheMemoryMB  int64   `toml:"cache_memory_mb"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Output:         "results.dat",
		TemplateBatch:  100,
		ProposalBatch:  100,
		TemplateMethod: "spa",
		ProposalMethod: "spa",
		MassWindow:     1.0,
		FLow:           15.0,
		Duration:       128,
		SampleRate:     4096,
		PSD:            "analytic",
	}
}

func loadFileConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// overrideFrom copies every flag the user set explicitly on the command
// line over the file-provided values.
func (c *fileConfig) overrideFrom(cmd *cobra.Command, flags fileConfig) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }

	if set("templates") {
		c.Templates = flags.Templates
	}
	if set("proposals") {
		c.Proposals = flags.Proposals
	}
	if set("output") {
		c.Output = flags.Output
	}
	if set("template-batch") {
		c.TemplateBatch = flags.TemplateBatch
	}
	if set("proposal-batch") {
		c.ProposalBatch = flags.ProposalBatch
	}
	if set("template-method") {
		c.TemplateMethod = flags.TemplateMethod
	}
	if set("proposal-method") {
		c.ProposalMethod = flags.ProposalMethod
	}
	if set("mass-window") {
		c.MassWindow = flags.MassWindow
	}
	if set("duration-window") {
		c.DurationWindow = flags.DurationWindow
	}
	if set("f-low") {
		c.FLow = flags.FLow
	}
	if set("duration") {
		c.Duration = flags.Duration
	}
	if set("sample-rate") {
		c.SampleRate = flags.SampleRate
	}
	if set("psd") {
		c.PSD = flags.PSD
	}
	if set("stream") {
		c.Stream = flags.Stream
	}
	if set("tolerate-failures") {
		c.Tolerate = flags.Tolerate
	}
	if set("compress") {
		c.Compress = flags.Compress
	}
	if set("cache-memory-mb") {
		c.CacheMemoryMB = flags.CacheMemoryMB
	}
}
