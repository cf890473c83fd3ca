// Package batch partitions entity collections into bounded-size chunks.
//
// Batching is the mechanism that bounds the waveform cache's resident set:
// the run driver clears the cache between outer batches, so at most one
// template batch and one proposal batch worth of signals is live at a time.
package batch

// Span is a half-open index range [Start, End) into a collection.
type Span struct {
	Start int
	End   int
}

// Len returns the number of elements covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Partition splits a collection of n elements into spans of at most size
// elements each, preserving original order and covering the collection
// exactly once. A non-positive size yields a single span. n == 0 yields no
// spans; the caller is expected to terminate early on empty collections.
func Partition(n, size int) []Span {
	if n <= 0 {
		return nil
	}
	if size <= 0 || size >= n {
		return []Span{{Start: 0, End: n}}
	}

	spans := make([]Span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, Span{Start: start, End: end})
	}
	return spans
}
