// Package psd constructs the shared noise-weighting spectrum.
//
// The spectrum is built once per run (before the batch loops begin) from an
// analytic model name or estimated from reference time-series data, and is
// shared read-only by every match evaluation. Bins below the low-frequency
// cutoff hold +Inf so they contribute nothing to weighted sums.
package psd

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/hupe1980/banksim/model"
)

// Known analytic model names.
const (
	ModelFlat     = "flat"
	ModelAnalytic = "analytic"
)

// FromModel builds a spectrum of the given bin count and resolution from a
// named analytic model. ModelFlat weights all bins equally; ModelAnalytic
// is a broadband ground-detector-like noise bowl with a 150 Hz minimum.
func FromModel(name string, bins int, df, flow float64) (model.Spectrum, error) {
	if bins <= 0 || df <= 0 {
		return model.Spectrum{}, fmt.Errorf("psd: invalid shape: bins=%d df=%g", bins, df)
	}

	var at func(f float64) float64
	switch name {
	case ModelFlat:
		at = func(float64) float64 { return 1 }
	case ModelAnalytic:
		at = analyticNoise
	default:
		return model.Spectrum{}, fmt.Errorf("psd: unknown model %q", name)
	}

	data := make([]float64, bins)
	for k := range data {
		f := float64(k) * df
		if f < flow {
			data[k] = math.Inf(1)
			continue
		}
		data[k] = at(f)
	}
	return model.Spectrum{Data: data, Df: df}, nil
}

// analyticNoise is a smooth analytic noise curve: a steep seismic wall at
// low frequency, a bucket near 150 Hz and a shot-noise rise above it.
func analyticNoise(f float64) float64 {
	x := f / 150.0
	return 9e-46 * (math.Pow(4.49*x, -56) + 0.16*math.Pow(x, -4.52) + 0.52 + 0.32*x*x)
}

// FromSamples estimates a one-sided spectrum from reference time-series
// data sampled at interval dt, using Welch averaging of Hann-windowed
// segments. The result has exactly bins bins at resolution df = 1/(dt*seg)
// with seg = 2*(bins-1); the input must supply at least one full segment.
func FromSamples(samples []float64, dt float64, bins int, flow float64) (model.Spectrum, error) {
	if bins < 2 || dt <= 0 {
		return model.Spectrum{}, fmt.Errorf("psd: invalid shape: bins=%d dt=%g", bins, dt)
	}
	seg := 2 * (bins - 1)
	if len(samples) < seg {
		return model.Spectrum{}, fmt.Errorf("psd: need at least %d samples for %d bins, got %d", seg, bins, len(samples))
	}

	fft := fourier.NewFFT(seg)
	window := hann(seg)
	var winNorm float64
	for _, w := range window {
		winNorm += w * w
	}

	acc := make([]float64, bins)
	buf := make([]float64, seg)
	nseg := 0
	// 50% overlapping segments, Welch style.
	for start := 0; start+seg <= len(samples); start += seg / 2 {
		for i := range buf {
			buf[i] = samples[start+i] * window[i]
		}
		coeffs := fft.Coefficients(nil, buf)
		for k := range acc {
			c := coeffs[k]
			acc[k] += real(c)*real(c) + imag(c)*imag(c)
		}
		nseg++
	}

	df := 1.0 / (dt * float64(seg))
	scale := 2 * dt / (winNorm * float64(nseg))
	data := make([]float64, bins)
	for k := range data {
		f := float64(k) * df
		if f < flow {
			data[k] = math.Inf(1)
			continue
		}
		data[k] = acc[k] * scale
	}
	return model.Spectrum{Data: data, Df: df}, nil
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
