package waveform

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/hupe1980/banksim/model"
)

// MethodSPA is the built-in frequency-domain stationary-phase approximant.
const MethodSPA = "spa"

// One megaparsec expressed in seconds.
const mpcSeconds = 1.02927125054339e14

// spa generates an aligned-spin, leading-eccentricity stationary-phase
// inspiral in the frequency domain and projects the two polarizations
// through an overhead detector response.
//
// The returned array covers bins up to the ISCO termination frequency;
// padding to the full bin count is handled by the Registry.
func spa(ctx context.Context, p model.Params, spec GenSpec) (model.Signal, error) {
	if err := validatePhysical(p, spec); err != nil {
		return model.Signal{}, &SynthesisError{Method: MethodSPA, Params: p, cause: err}
	}

	var (
		mt   = p.TotalMass() * model.MTSun
		mc   = p.ChirpMass() * model.MTSun
		eta  = p.Eta()
		df   = spec.DeltaF()
		fMax = isco(p)
	)

	// Effective aligned spin enters through the leading spin-orbit term.
	chi := (p.Mass1*p.Spin1z + p.Mass2*p.Spin2z) / p.TotalMass()
	beta := (113.0/12.0 - 19.0/3.0*eta) * chi

	dist := p.Distance
	if dist <= 0 {
		dist = 1
	}
	amp := math.Sqrt(5.0/24.0) * math.Pow(math.Pi, -2.0/3.0) * math.Pow(mc, 5.0/6.0) / (dist * mpcSeconds)

	// Overhead response: the source direction is fixed at the zenith and
	// only the polarization angle rotates the frame.
	cosi := math.Cos(p.Inclination)
	fplus := math.Cos(2 * p.Polarization)
	fcross := -math.Sin(2 * p.Polarization)
	// h = F+ h+ + Fx hx with hx a quarter-cycle ahead of h+.
	response := complex(fplus*(1+cosi*cosi)/2, -fcross*cosi)
	phase0 := cmplx.Exp(complex(0, 2*p.CoaPhase))

	kmin := int(math.Ceil(spec.FLow / df))
	kmax := int(fMax / df)
	if kmax > spec.Bins()-1 {
		kmax = spec.Bins() - 1
	}
	if kmin >= kmax {
		return model.Signal{}, &SynthesisError{Method: MethodSPA, Params: p,
			cause: fmt.Errorf("no band between flow=%g and termination=%g", spec.FLow, fMax)}
	}

	data := make([]complex128, kmax+1)
	for k := kmin; k <= kmax; k++ {
		if k%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return model.Signal{}, err
			}
		}

		f := float64(k) * df
		v := math.Pow(math.Pi*mt*f, 1.0/3.0)
		v2 := v * v

		// 2PN phasing plus the leading spin-orbit and eccentricity terms.
		psi := 3.0 / (128.0 * eta * v2 * v2 * v) * (1 +
			(3715.0/756.0+55.0/9.0*eta)*v2 +
			(beta-16*math.Pi)*v2*v +
			(15293365.0/508032.0+27145.0/504.0*eta+3085.0/72.0*eta*eta)*v2*v2)
		if p.Eccentricity != 0 {
			e2 := p.Eccentricity * p.Eccentricity
			psi -= 2355.0 / 1462.0 * e2 * math.Pow(spec.FLow/f, 19.0/9.0) * 3.0 / (128.0 * eta * v2 * v2 * v)
		}
		psi += math.Pi / 4

		h := complex(amp*math.Pow(f, -7.0/6.0), 0) * cmplx.Exp(complex(0, -psi))
		data[k] = h * response * phase0
	}

	return model.Signal{Data: data, Df: df}, nil
}

// isco returns the Schwarzschild innermost-stable-circular-orbit frequency
// in Hz, the termination point of the inspiral phasing.
func isco(p model.Params) float64 {
	return 1.0 / (6.0 * math.Sqrt(6.0) * math.Pi * p.TotalMass() * model.MTSun)
}

func validatePhysical(p model.Params, spec GenSpec) error {
	if p.Mass1 <= 0 || p.Mass2 <= 0 {
		return fmt.Errorf("non-positive component mass")
	}
	if math.Abs(p.Spin1z) > 1 || math.Abs(p.Spin2z) > 1 {
		return fmt.Errorf("component spin magnitude exceeds 1")
	}
	if p.Eccentricity < 0 || p.Eccentricity >= 1 {
		return fmt.Errorf("eccentricity %g outside [0,1)", p.Eccentricity)
	}
	if isco(p) <= spec.FLow {
		return fmt.Errorf("system merges below the low-frequency cutoff")
	}
	return nil
}
