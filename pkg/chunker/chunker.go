// Package chunker implements content-defined chunking over FastCDC with an
// adaptively chosen average chunk size, as specified in §4.4.
package chunker

import (
	"fmt"
	"io"
	"math/bits"

	fastcdc "github.com/jotfs/fastcdc-go"
)

// AvgFloor is the lowest adaptive average chunk size, 128 KiB.
const AvgFloor = 128 * 1024

// AdaptiveAverageSize computes the average chunk size for an input of n
// bytes per §4.4: quantize n/32 to its top five significant bits, then floor
// the result at AvgFloor. The result is monotonic non-decreasing in n.
func AdaptiveAverageSize(n int64) int {
	if n < 0 {
		n = 0
	}
	box := n / 32
	bitsLen := bits.Len64(uint64(box))
	shift := bitsLen - 5
	if shift < 0 {
		shift = 0
	}
	avg := (box >> shift) << shift
	if avg < AvgFloor {
		avg = AvgFloor
	}
	return int(avg)
}

// Span is a single (offset, length) chunk boundary within an input.
type Span struct {
	Offset int64
	Length int64
}

// ChunkFunc is invoked once per chunk, in order. data is valid only for the
// duration of the call: the chunker reuses its internal buffer on the next
// iteration, so implementations that need to retain the bytes (e.g. to hand
// them to an Object Store Gateway call) must copy them.
type ChunkFunc func(span Span, data []byte) error

// Chunk runs FastCDC over r with the given average size, invoking fn once
// per chunk in order. It covers the entire input exactly: the spans' offsets
// and lengths partition [0, n) with no gaps or overlaps.
//
// Minimum and maximum chunk size derive from avgSize using FastCDC's usual
// quarter/quadruple ratio (avgSize/4, avgSize*4), matching how the chosen
// implementation is wired elsewhere in the ecosystem.
func Chunk(r io.Reader, avgSize int, fn ChunkFunc) error {
	if avgSize <= 0 {
		return fmt.Errorf("chunker: average size must be positive, got %d", avgSize)
	}

	opts := fastcdc.Options{
		AverageSize: avgSize,
		MinSize:     avgSize / 4,
		MaxSize:     avgSize * 4,
	}

	c, err := fastcdc.NewChunker(r, opts)
	if err != nil {
		return fmt.Errorf("chunker: create FastCDC chunker: %w", err)
	}

	var offset int64
	for {
		fc, err := c.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("chunker: read next chunk: %w", err)
		}

		span := Span{Offset: offset, Length: int64(len(fc.Data))}
		if err := fn(span, fc.Data); err != nil {
			return err
		}
		offset += span.Length
	}
}
