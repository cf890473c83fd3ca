// Package sink records one result line per evaluated pair.
//
// Two modes exist, selected once per run: Streaming appends each record to
// the destination file before returning, so a crash mid-run leaves a valid
// prefix of results; Buffered accumulates everything in memory and writes
// a single artifact at flush time, optionally zstd-compressed, through a
// blobstore.Store.
//
// The record format is fixed: tab-separated template tag, proposal tag,
// match, template norm and proposal norm, 12 significant digits, one line
// per pair, in batch-traversal order.
package sink

import (
	"fmt"

	"github.com/hupe1980/banksim/model"
)

// Sink consumes pair records in traversal order.
type Sink interface {
	// Write records one pair outcome.
	Write(rec model.PairRecord) error
	// Flush makes all written records part of the output artifact.
	Flush() error
	// Close releases the destination. Close does not imply Flush.
	Close() error
}

// Encode serializes one record line. Control outcomes appear as the legacy
// numeric sentinels (-1 pruned, 1 1 1 self, -2 failed).
func Encode(rec model.PairRecord) []byte {
	m, st, sp := rec.Outcome.Sentinels()
	return fmt.Appendf(nil, "%s\t%s\t%.12g\t%.12g\t%.12g\n", rec.TemplateTag, rec.ProposalTag, m, st, sp)
}
