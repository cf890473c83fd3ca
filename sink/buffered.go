package sink

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/banksim/blobstore"
	"github.com/hupe1980/banksim/model"
)

// BufferedOption configures a Buffered sink.
type BufferedOption func(*Buffered)

// WithZstd compresses the flushed artifact with zstd. Large pair grids
// are highly repetitive and typically shrink by an order of magnitude.
func WithZstd() BufferedOption {
	return func(b *Buffered) {
		b.compress = true
	}
}

// Buffered accumulates all records in memory and writes one artifact at
// Flush through a blobstore.Store (local directory or S3).
type Buffered struct {
	store    blobstore.Store
	name     string
	compress bool

	buf     bytes.Buffer
	flushed bool
}

// NewBuffered creates a buffered sink writing the artifact under name.
func NewBuffered(store blobstore.Store, name string, opts ...BufferedOption) *Buffered {
	b := &Buffered{store: store, name: name}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Write accumulates one record.
func (b *Buffered) Write(rec model.PairRecord) error {
	_, err := b.buf.Write(Encode(rec))
	return err
}

// Flush writes the accumulated artifact. A second Flush is a no-op so the
// driver's Flush state and deferred cleanup cannot double-write.
func (b *Buffered) Flush() error {
	if b.flushed {
		return nil
	}

	data := b.buf.Bytes()
	if b.compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("sink: %w", err)
		}
		data = enc.EncodeAll(data, make([]byte, 0, len(data)/8))
		enc.Close()
	}

	if err := b.store.Put(context.Background(), b.name, data); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	b.flushed = true
	return nil
}

// Close releases the buffer.
func (b *Buffered) Close() error {
	b.buf.Reset()
	return nil
}
