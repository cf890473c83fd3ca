package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/banksim/model"
	"github.com/hupe1980/banksim/resource"
)

// Streaming appends each record to a local file as it arrives. Writes are
// unbuffered: nothing sits below the engine's control, so an interrupted
// run leaves a valid prefix of the output. Each append reaches the OS page
// cache before Write returns; durability against power loss is only
// guaranteed after Flush, which syncs the file. The file is created (and
// truncated) at construction so an empty run still produces an artifact.
type Streaming struct {
	f *os.File
	w io.Writer
}

// NewStreaming opens the destination for immediate-flush output. rc may be
// nil; when set, appends are throttled by its IO limit.
func NewStreaming(ctx context.Context, path string, rc *resource.Controller) (*Streaming, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}

	var w io.Writer = f
	if rc != nil {
		w = resource.NewRateLimitedWriter(ctx, f, rc)
	}
	return &Streaming{f: f, w: w}, nil
}

// Write appends one record.
func (s *Streaming) Write(rec model.PairRecord) error {
	if _, err := s.w.Write(Encode(rec)); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	return nil
}

// Flush syncs the file. Individual writes are already append-only and
// unbuffered; Flush only forces the tail to stable storage.
func (s *Streaming) Flush() error {
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	return nil
}

// Close closes the destination file.
func (s *Streaming) Close() error {
	return s.f.Close()
}
