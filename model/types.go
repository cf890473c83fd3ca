package model

import (
	"fmt"
	"math"
)

// MTSun is one solar mass expressed in seconds (G*Msun/c^3).
const MTSun = 4.925491025543576e-06

// Tag is the stable, run-unique identity of an entity. Tags must be unique
// across the union of the template and proposal collections.
type Tag string

// Role selects which of the two synthesis configurations applies to an
// entity. The role is fixed by the collection the entity belongs to.
type Role int

const (
	// RoleTemplate marks an entity from the template collection.
	RoleTemplate Role = iota
	// RoleProposal marks an entity from the proposal collection.
	RoleProposal
)

func (r Role) String() string {
	switch r {
	case RoleTemplate:
		return "template"
	case RoleProposal:
		return "proposal"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

// Params is the enumerated physical parameter record of one entity.
// Masses are in solar masses, distance in megaparsecs, angles in radians.
type Params struct {
	Mass1        float64
	Mass2        float64
	Spin1z       float64
	Spin2z       float64
	Eccentricity float64
	Inclination  float64
	Polarization float64
	CoaPhase     float64
	Distance     float64
}

// TotalMass returns m1+m2 in solar masses.
func (p Params) TotalMass() float64 { return p.Mass1 + p.Mass2 }

// Eta returns the symmetric mass ratio m1*m2/(m1+m2)^2.
func (p Params) Eta() float64 {
	m := p.TotalMass()
	if m == 0 {
		return 0
	}
	return p.Mass1 * p.Mass2 / (m * m)
}

// ChirpMass returns the chirp mass (m1*m2)^(3/5)/(m1+m2)^(1/5) in solar masses.
func (p Params) ChirpMass() float64 {
	m := p.TotalMass()
	if m == 0 {
		return 0
	}
	return math.Pow(p.Mass1*p.Mass2, 0.6) / math.Pow(m, 0.2)
}

// ChirpTime returns the Newtonian chirp time in seconds from the given
// low-frequency cutoff: the leading-order time the system spends above flow.
func (p Params) ChirpTime(flow float64) float64 {
	eta := p.Eta()
	if eta == 0 || flow <= 0 {
		return 0
	}
	m := p.TotalMass() * MTSun
	v := math.Pow(math.Pi*m*flow, 1.0/3.0)
	return 5.0 / (256.0 * eta) * m / math.Pow(v, 8)
}

// DebugString lists every known parameter field. It is used for diagnostic
// dumps when synthesis fails for an entity.
func (p Params) DebugString() string {
	return fmt.Sprintf(
		"mass1=%g mass2=%g spin1z=%g spin2z=%g eccentricity=%g inclination=%g polarization=%g coa_phase=%g distance=%g",
		p.Mass1, p.Mass2, p.Spin1z, p.Spin2z, p.Eccentricity,
		p.Inclination, p.Polarization, p.CoaPhase, p.Distance,
	)
}

// Entity is one parametrized physical system. Entities are read-only once
// loaded; the engine never mutates them after ingestion.
type Entity struct {
	Tag    Tag
	Params Params
}

// Signal is one entity's projected waveform in the frequency domain:
// exactly N/2+1 complex bins at resolution Df, or the absent sentinel when
// synthesis failed and failure tolerance is enabled.
//
// Signals are immutable once created. The waveform cache is the sole owner;
// consumers must treat Data as read-only.
type Signal struct {
	Data []complex128
	Df   float64
	// Absent marks a signal whose synthesis failed under failure tolerance.
	Absent bool
}

// AbsentSignal returns the absent sentinel.
func AbsentSignal() Signal { return Signal{Absent: true} }

// Bins returns the number of frequency bins.
func (s Signal) Bins() int { return len(s.Data) }

// SizeBytes returns the managed memory footprint of the signal payload.
func (s Signal) SizeBytes() int64 { return int64(len(s.Data)) * 16 }

// Spectrum is the shared noise-weighting array: N/2+1 real bins at
// resolution Df. It is created before the batch loops begin and is
// read-only thereafter. Bins below the low-frequency cutoff hold +Inf so
// that they contribute nothing to weighted sums.
type Spectrum struct {
	Data []float64
	Df   float64
}

// Bins returns the number of frequency bins.
func (s Spectrum) Bins() int { return len(s.Data) }

// OutcomeKind discriminates the per-pair result variant.
type OutcomeKind int

const (
	// Pruned means a parameter-window filter skipped the pair before any
	// signal synthesis.
	Pruned OutcomeKind = iota
	// SelfMatch means both tags refer to the same underlying entity.
	SelfMatch
	// EvaluationFailed means evaluation was attempted but at least one
	// side's signal was absent.
	EvaluationFailed
	// Evaluated means a true match value was computed.
	Evaluated
)

func (k OutcomeKind) String() string {
	switch k {
	case Pruned:
		return "pruned"
	case SelfMatch:
		return "self"
	case EvaluationFailed:
		return "failed"
	case Evaluated:
		return "evaluated"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Outcome is the tagged result of one pair evaluation. The legacy numeric
// sentinels (-1 pruned, 1/1/1 self, -2 failed) exist only at the output
// serialization boundary; see Sentinels.
type Outcome struct {
	Kind          OutcomeKind
	Match         float64
	TemplateSigma float64
	ProposalSigma float64
}

// PrunedOutcome returns the outcome recorded for a window-pruned pair.
func PrunedOutcome() Outcome { return Outcome{Kind: Pruned} }

// SelfMatchOutcome returns the outcome recorded for an identity pair.
func SelfMatchOutcome() Outcome {
	return Outcome{Kind: SelfMatch, Match: 1, TemplateSigma: 1, ProposalSigma: 1}
}

// FailedOutcome returns the outcome for a pair where at least one side's
// signal was absent. Each side's sigma is the computed value for a present
// side and -1 for an absent one.
func FailedOutcome(templateSigma, proposalSigma float64) Outcome {
	return Outcome{Kind: EvaluationFailed, TemplateSigma: templateSigma, ProposalSigma: proposalSigma}
}

// EvaluatedOutcome returns the outcome carrying a true computed match.
func EvaluatedOutcome(match, templateSigma, proposalSigma float64) Outcome {
	return Outcome{Kind: Evaluated, Match: match, TemplateSigma: templateSigma, ProposalSigma: proposalSigma}
}

// Sentinels serializes the outcome to the legacy numeric triple
// (match, template norm, proposal norm) used by the output record format.
func (o Outcome) Sentinels() (match, templateSigma, proposalSigma float64) {
	switch o.Kind {
	case Pruned:
		return -1, 0, 0
	case SelfMatch:
		return 1, 1, 1
	case EvaluationFailed:
		return -2, o.TemplateSigma, o.ProposalSigma
	default:
		return o.Match, o.TemplateSigma, o.ProposalSigma
	}
}

// PairRecord is the output unit: one template/proposal pair and its outcome.
type PairRecord struct {
	TemplateTag Tag
	ProposalTag Tag
	Outcome     Outcome
}
