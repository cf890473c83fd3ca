// Package prune implements the cheap parameter-only pre-filters that skip
// pairs before any signal synthesis.
//
// Filters run in a fixed order: chirp-mass window, then chirp-time window,
// then the identity check. Each filter short-circuits with its own outcome.
// A window of zero disables that filter.
package prune

import (
	"math"

	"github.com/hupe1980/banksim/model"
)

// Chain holds the run's pruning configuration. The zero value disables
// both windows and only performs the identity check.
type Chain struct {
	// MassWindow prunes pairs whose chirp masses differ by more than this
	// many solar masses. Zero disables the window.
	MassWindow float64
	// DurationWindow prunes pairs whose Newtonian chirp times, evaluated
	// at FLow, differ by more than this many seconds. Zero disables it.
	DurationWindow float64
	// FLow is the low-frequency cutoff the duration proxy is evaluated at.
	FLow float64
}

// Apply runs the filters against one pair. When a filter fires, Apply
// returns the outcome to record and true; otherwise the pair survives and
// must be evaluated.
func (c Chain) Apply(template, proposal *model.Entity) (model.Outcome, bool) {
	if c.MassWindow > 0 {
		d := math.Abs(template.Params.ChirpMass() - proposal.Params.ChirpMass())
		if d > c.MassWindow {
			return model.PrunedOutcome(), true
		}
	}

	if c.DurationWindow > 0 {
		d := math.Abs(template.Params.ChirpTime(c.FLow) - proposal.Params.ChirpTime(c.FLow))
		if d > c.DurationWindow {
			return model.PrunedOutcome(), true
		}
	}

	// Identity is checked after the windows. An aliased entity has
	// identical parameters on both sides, so the windows can never fire
	// on a genuine self pair and the (1,1,1) record is guaranteed.
	if template.Tag == proposal.Tag {
		return model.SelfMatchOutcome(), true
	}

	return model.Outcome{}, false
}
