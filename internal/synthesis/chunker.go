package synthesis

import (
	"fmt"
	"iter"

	"github.com/satriahrh/arunika/streaming/domain/entities"
)

// ChunkResult is one slice of synthesized audio ready for delivery.
type ChunkResult struct {
	Chunk   []byte
	IsFinal bool
}

// ChunkIterator yields consecutive slices of a buffer on demand. It is single-consumer
// and cannot be restarted; dropping it mid-stream has no side effects.
type ChunkIterator struct {
	buf       []byte
	chunkSize int
	offset    int
}

// NewChunkIterator slices buf into chunks of chunkSize bytes. Only the last chunk, which
// holds the remainder, is final. An empty buffer yields no chunks.
func NewChunkIterator(buf []byte, chunkSize int) (*ChunkIterator, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk_size must be positive, got %d", entities.ErrInvalidConfiguration, chunkSize)
	}
	return &ChunkIterator{buf: buf, chunkSize: chunkSize}, nil
}

// Next returns the next chunk, or false once the buffer is exhausted.
func (it *ChunkIterator) Next() (ChunkResult, bool) {
	if it.offset >= len(it.buf) {
		return ChunkResult{}, false
	}

	end := it.offset + it.chunkSize
	if end >= len(it.buf) {
		end = len(it.buf)
	}

	chunk := ChunkResult{
		Chunk:   it.buf[it.offset:end:end],
		IsFinal: end == len(it.buf),
	}
	it.offset = end
	return chunk, true
}

// Done reports whether every chunk has been produced.
func (it *ChunkIterator) Done() bool {
	return it.offset >= len(it.buf)
}

// Remaining is the number of chunks not yet produced.
func (it *ChunkIterator) Remaining() int {
	left := len(it.buf) - it.offset
	if left <= 0 {
		return 0
	}
	return (left + it.chunkSize - 1) / it.chunkSize
}

// All drains the iterator as a range-over-func sequence. Breaking out of the loop leaves
// the unread chunks in the iterator.
func (it *ChunkIterator) All() iter.Seq[ChunkResult] {
	return func(yield func(ChunkResult) bool) {
		for {
			chunk, ok := it.Next()
			if !ok || !yield(chunk) {
				return
			}
		}
	}
}
