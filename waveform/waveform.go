// Package waveform defines the synthesis boundary of the engine: the
// contract that maps an entity's physical parameters to a fixed-length
// frequency-domain signal, projected through a detector response.
//
// The engine treats generation methods as opaque. A built-in
// stationary-phase approximant ("spa") is registered by default so the
// engine runs end to end without external generators; additional methods
// can be registered by name.
package waveform

import (
	"context"
	"fmt"

	"github.com/hupe1980/banksim/model"
)

// GenSpec fixes the generation geometry for one side of the comparison:
// the method identifier, low-frequency cutoff, sample interval and target
// time-domain sample count. The produced signal has exactly
// SampleCount/2+1 bins at resolution 1/(DeltaT*SampleCount).
type GenSpec struct {
	Method      string
	FLow        float64
	DeltaT      float64
	SampleCount int
}

// Bins returns the one-sided frequency bin count implied by the geometry.
func (g GenSpec) Bins() int { return g.SampleCount/2 + 1 }

// DeltaF returns the frequency resolution implied by the geometry.
func (g GenSpec) DeltaF() float64 { return 1.0 / (g.DeltaT * float64(g.SampleCount)) }

// Validate reports configuration errors in the spec itself.
func (g GenSpec) Validate() error {
	if g.Method == "" {
		return fmt.Errorf("waveform: empty generation method")
	}
	if g.DeltaT <= 0 || g.SampleCount <= 0 {
		return fmt.Errorf("waveform: invalid sampling: dt=%g n=%d", g.DeltaT, g.SampleCount)
	}
	if g.FLow <= 0 {
		return fmt.Errorf("waveform: invalid low-frequency cutoff %g", g.FLow)
	}
	return nil
}

// Synthesizer produces one entity's projected frequency-domain signal.
//
// Implementations must return a signal of exactly spec.Bins() bins,
// zero-padded when the underlying generator terminates below Nyquist, and
// must fail with a *SynthesisError when the parameters cannot produce a
// signal. Whether that failure aborts the run is the caller's decision.
type Synthesizer interface {
	Synthesize(ctx context.Context, p model.Params, spec GenSpec) (model.Signal, error)
}

// GeneratorFunc is one registered generation method.
type GeneratorFunc func(ctx context.Context, p model.Params, spec GenSpec) (model.Signal, error)

// Registry is the default Synthesizer: a name-indexed set of generation
// methods. The zero value is unusable; use NewRegistry.
type Registry struct {
	methods map[string]GeneratorFunc
}

// NewRegistry returns a Registry with the built-in "spa" method registered.
func NewRegistry() *Registry {
	r := &Registry{methods: make(map[string]GeneratorFunc)}
	r.Register(MethodSPA, spa)
	return r
}

// Register adds or replaces a generation method. Registration must happen
// before the run's match loop begins; the registry is read-only afterward.
func (r *Registry) Register(name string, fn GeneratorFunc) {
	r.methods[name] = fn
}

// Synthesize dispatches to the named method and enforces the padding
// contract on its output.
func (r *Registry) Synthesize(ctx context.Context, p model.Params, spec GenSpec) (model.Signal, error) {
	if err := ctx.Err(); err != nil {
		return model.Signal{}, err
	}
	fn, ok := r.methods[spec.Method]
	if !ok {
		return model.Signal{}, &SynthesisError{Method: spec.Method, Params: p,
			cause: fmt.Errorf("unknown generation method %q", spec.Method)}
	}

	sig, err := fn(ctx, p, spec)
	if err != nil {
		return model.Signal{}, err
	}
	sig.Data = padTo(sig.Data, spec.Bins())
	sig.Df = spec.DeltaF()
	return sig, nil
}

// padTo zero-pads (or truncates) data to exactly bins bins.
func padTo(data []complex128, bins int) []complex128 {
	if len(data) == bins {
		return data
	}
	out := make([]complex128, bins)
	copy(out, data)
	return out
}

// SynthesisError reports that a generation method could not produce a
// signal for an entity's parameters. It carries a full parameter dump for
// diagnostics. The underlying cause is available via errors.Unwrap.
type SynthesisError struct {
	Method string
	Params model.Params
	cause  error
}

// NewSynthesisError wraps cause as a generation failure for the given
// method and parameters. External generators use it to report failures the
// engine can attribute to one entity.
func NewSynthesisError(method string, p model.Params, cause error) *SynthesisError {
	return &SynthesisError{Method: method, Params: p, cause: cause}
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("waveform: method %q failed for [%s]: %v", e.Method, e.Params.DebugString(), e.cause)
}

func (e *SynthesisError) Unwrap() error { return e.cause }
