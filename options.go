package banksim

import (
	"github.com/hupe1980/banksim/model"
	"github.com/hupe1980/banksim/resource"
	"github.com/hupe1980/banksim/waveform"
)

// Config holds the numeric knobs of one run. Zero values fall back to the
// documented defaults; see DefaultConfig.
type Config struct {
	// TemplateBatchSize and ProposalBatchSize bound the per-side chunks
	// the collections are partitioned into. Default 100.
	TemplateBatchSize int
	ProposalBatchSize int

	// TemplateMethod and ProposalMethod name the generation method for
	// each side. Default waveform.MethodSPA for both.
	TemplateMethod string
	ProposalMethod string

	// MassWindow prunes pairs whose chirp masses differ by more than this
	// many solar masses. Default 1.0. A zero value means "use the
	// default"; set DisableMassWindow to turn the window off.
	MassWindow float64
	// DisableMassWindow turns the mass window off regardless of MassWindow.
	DisableMassWindow bool

	// DurationWindow prunes pairs whose chirp times differ by more than
	// this many seconds. Default 0 (disabled).
	DurationWindow float64

	// FLow is the low-frequency cutoff in Hz. Default 15.
	FLow float64

	// Duration is the signal duration in seconds. Default 128.
	Duration float64

	// SampleRate is the implied time-domain sample rate in Hz. Default 4096.
	SampleRate float64

	// PSDModel names the analytic noise model used when no spectrum is
	// injected. Default "analytic".
	PSDModel string

	// TolerateFailures records failed syntheses as absent signals and
	// keeps going instead of aborting the run. Default off.
	TolerateFailures bool
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return Config{
		TemplateBatchSize: 100,
		ProposalBatchSize: 100,
		TemplateMethod:    waveform.MethodSPA,
		ProposalMethod:    waveform.MethodSPA,
		MassWindow:        1.0,
		FLow:              15.0,
		Duration:          128,
		SampleRate:        4096,
		PSDModel:          "analytic",
	}
}

// withDefaults fills zero fields with their defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TemplateBatchSize == 0 {
		c.TemplateBatchSize = d.TemplateBatchSize
	}
	if c.ProposalBatchSize == 0 {
		c.ProposalBatchSize = d.ProposalBatchSize
	}
	if c.TemplateMethod == "" {
		c.TemplateMethod = d.TemplateMethod
	}
	if c.ProposalMethod == "" {
		c.ProposalMethod = d.ProposalMethod
	}
	if c.MassWindow == 0 && !c.DisableMassWindow {
		c.MassWindow = d.MassWindow
	}
	if c.DisableMassWindow {
		c.MassWindow = 0
	}
	if c.FLow == 0 {
		c.FLow = d.FLow
	}
	if c.Duration == 0 {
		c.Duration = d.Duration
	}
	if c.SampleRate == 0 {
		c.SampleRate = d.SampleRate
	}
	if c.PSDModel == "" {
		c.PSDModel = d.PSDModel
	}
	return c
}

type options struct {
	logger    *Logger
	synth     waveform.Synthesizer
	rc        *resource.Controller
	spectrum  *model.Spectrum
	collector StatsCollector
}

// Option configures a Runner beyond the numeric Config.
type Option func(*options)

// WithLogger sets the structured logger. If nil, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithSynthesizer replaces the built-in waveform registry, e.g. to plug in
// external generation backends.
func WithSynthesizer(s waveform.Synthesizer) Option {
	return func(o *options) {
		if s != nil {
			o.synth = s
		}
	}
}

// WithResourceController sets the execution context the run acquires for
// its lifetime: cache memory budget, run slots and output IO throttling.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithSpectrum injects a pre-built noise spectrum instead of constructing
// one from Config.PSDModel. The spectrum must match the run's bin count
// and resolution.
func WithSpectrum(s model.Spectrum) Option {
	return func(o *options) {
		o.spectrum = &s
	}
}

// WithStatsCollector adds an external observer of run progress. The
// engine's own RunStats is kept either way.
func WithStatsCollector(c StatsCollector) Option {
	return func(o *options) {
		if c != nil {
			o.collector = c
		}
	}
}
