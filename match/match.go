// Package match computes noise-weighted normalizations and time/phase
// maximized normalized overlaps between frequency-domain signals.
//
// All inputs must share the run's fixed bin count and resolution; padding
// and truncation are the synthesizer's contract, not the evaluator's.
// Shape violations here indicate a configuration bug and are fatal.
package match

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/hupe1980/banksim/model"
)

// AbsentSigma is the normalization reported for an absent signal.
const AbsentSigma = -1

// ShapeError indicates a signal or spectrum whose length or resolution
// does not match the evaluator's fixed geometry.
type ShapeError struct {
	What     string
	Expected int
	Actual   int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("match: %s length mismatch: expected %d bins, got %d", e.What, e.Expected, e.Actual)
}

// Evaluator computes sigmas and matches against one shared noise spectrum.
// It owns a reusable FFT plan and scratch buffer sized to the run's
// geometry; it is not safe for concurrent use.
type Evaluator struct {
	spectrum model.Spectrum
	kmin     int
	bins     int
	fft      *fourier.CmplxFFT
	scratch  []complex128
}

// NewEvaluator builds an evaluator for signals of the given bin count
// against the shared spectrum, weighting only bins at or above flow.
func NewEvaluator(spectrum model.Spectrum, bins int, flow float64) (*Evaluator, error) {
	if spectrum.Bins() != bins {
		return nil, &ShapeError{What: "spectrum", Expected: bins, Actual: spectrum.Bins()}
	}
	if spectrum.Df <= 0 {
		return nil, fmt.Errorf("match: invalid spectrum resolution %g", spectrum.Df)
	}
	kmin := int(math.Ceil(flow / spectrum.Df))
	if kmin >= bins {
		return nil, fmt.Errorf("match: low-frequency cutoff %g leaves no band in %d bins at df=%g", flow, bins, spectrum.Df)
	}

	n := 2 * (bins - 1)
	return &Evaluator{
		spectrum: spectrum,
		kmin:     kmin,
		bins:     bins,
		fft:      fourier.NewCmplxFFT(n),
		scratch:  make([]complex128, n),
	}, nil
}

// Sigma returns the spectrum-weighted norm of one signal, or AbsentSigma
// for the absent sentinel.
func (e *Evaluator) Sigma(sig model.Signal) (float64, error) {
	if sig.Absent {
		return AbsentSigma, nil
	}
	if sig.Bins() != e.bins {
		return 0, &ShapeError{What: "signal", Expected: e.bins, Actual: sig.Bins()}
	}

	var sum float64
	for k := e.kmin; k < e.bins; k++ {
		s := e.spectrum.Data[k]
		if math.IsInf(s, 1) {
			continue
		}
		h := sig.Data[k]
		sum += (real(h)*real(h) + imag(h)*imag(h)) / s
	}
	return math.Sqrt(4 * e.spectrum.Df * sum), nil
}

// Match returns the match between two signals: the noise-weighted overlap
// maximized over relative time shift and phase, normalized by both sigmas,
// in [0,1]. Neither input may be absent; the caller handles the absent
// path before evaluation.
func (e *Evaluator) Match(a, b model.Signal) (float64, error) {
	if a.Bins() != e.bins {
		return 0, &ShapeError{What: "template signal", Expected: e.bins, Actual: a.Bins()}
	}
	if b.Bins() != e.bins {
		return 0, &ShapeError{What: "proposal signal", Expected: e.bins, Actual: b.Bins()}
	}

	sigA, err := e.Sigma(a)
	if err != nil {
		return 0, err
	}
	sigB, err := e.Sigma(b)
	if err != nil {
		return 0, err
	}
	if sigA == 0 || sigB == 0 {
		return 0, nil
	}

	// Weighted cross-spectrum over the analysis band; the upper half of
	// the scratch buffer stays zero (analytic-signal convention), which
	// makes the magnitude of the inverse transform phase-maximizing.
	for i := range e.scratch {
		e.scratch[i] = 0
	}
	for k := e.kmin; k < e.bins; k++ {
		s := e.spectrum.Data[k]
		if math.IsInf(s, 1) {
			continue
		}
		e.scratch[k] = a.Data[k] * cmplx.Conj(b.Data[k]) / complex(s, 0)
	}

	// Unnormalized inverse DFT: each output sample is the band overlap at
	// one relative time shift.
	series := e.fft.Sequence(nil, e.scratch)

	var peak float64
	for _, c := range series {
		m := real(c)*real(c) + imag(c)*imag(c)
		if m > peak {
			peak = m
		}
	}

	return 4 * e.spectrum.Df * math.Sqrt(peak) / (sigA * sigB), nil
}
