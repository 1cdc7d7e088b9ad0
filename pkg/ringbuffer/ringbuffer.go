// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package ringbuffer

import (
	"bytes"
	"fmt"

	"github.com/antimetal/linestage/pkg/errors"
)

// NotFound is returned by Find when the target byte is not stored.
const NotFound = -1

var (
	ErrInvalidCapacity = errors.New("capacity must be greater than 0")
	ErrInvalidCount    = errors.New("count must not be negative")
	ErrClosed          = errors.New("ring buffer is closed")

	// ErrInsufficientSpace and ErrInsufficientData leave the buffer untouched.
	// Both clear up once the other side makes progress, so they are retryable.
	ErrInsufficientSpace = errors.NewRetryable("insufficient space in ring buffer")
	ErrInsufficientData  = errors.NewRetryable("insufficient data in ring buffer")
)

// RingBuffer is a fixed-capacity circular byte buffer used to stage text
// records between the producer and the consumer of a channel.
//
// A buffer of capacity N holds at most N-1 bytes. The remaining slot is kept
// free so that a full buffer and an empty one never share the same state.
// Writes and pops are all-or-nothing: a rejected call leaves the buffer
// exactly as it was.
//
// Note: This implementation is NOT thread-safe. If concurrent access is needed,
// synchronization must be handled externally.
type RingBuffer struct {
	data  []byte
	start int // physical index of the oldest byte
	size  int // number of valid bytes
}

// New creates a new ring buffer with the given capacity
func New(capacity int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidCapacity, capacity)
	}
	return &RingBuffer{
		data: make([]byte, capacity),
	}, nil
}

// Write appends p to the end of the buffer. Either all of p is stored or,
// when fewer than len(p) bytes are free, nothing is and ErrInsufficientSpace
// is returned.
func (r *RingBuffer) Write(p []byte) (int, error) {
	if r.data == nil {
		return 0, ErrClosed
	}
	if avail := r.Available(); len(p) > avail {
		return 0, fmt.Errorf("%w: need %d bytes, %d available", ErrInsufficientSpace, len(p), avail)
	}

	// copy stops at the physical end; whatever is left wraps to index 0.
	pos := r.physical(r.size)
	n := copy(r.data[pos:], p)
	copy(r.data, p[n:])
	r.size += len(p)
	return len(p), nil
}

// WriteString is like Write but takes a string.
func (r *RingBuffer) WriteString(s string) (int, error) {
	return r.Write([]byte(s))
}

// Pop removes and returns the count oldest bytes. If fewer than count bytes
// are stored nothing is removed and ErrInsufficientData is returned.
func (r *RingBuffer) Pop(count int) ([]byte, error) {
	if r.data == nil {
		return nil, ErrClosed
	}
	if count < 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidCount, count)
	}
	if count > r.size {
		return nil, fmt.Errorf("%w: requested %d bytes, %d stored", ErrInsufficientData, count, r.size)
	}

	result := make([]byte, count)
	r.peek(result)
	r.start = r.physical(count)
	r.size -= count
	return result, nil
}

// Find returns the logical offset of the first occurrence of target, counted
// from the oldest stored byte, or NotFound.
func (r *RingBuffer) Find(target byte) int {
	tail, head := r.segments()
	if i := bytes.IndexByte(tail, target); i >= 0 {
		return i
	}
	if i := bytes.IndexByte(head, target); i >= 0 {
		return len(tail) + i
	}
	return NotFound
}

// Dump describes the current state of the buffer:
//
//	ZeroIndex:<start>,Size:<size>,Capacity:<capacity>
//	BUFFER:"<content>"
func (r *RingBuffer) Dump() string {
	content := make([]byte, r.size)
	r.peek(content)
	return fmt.Sprintf("ZeroIndex:%d,Size:%d,Capacity:%d\nBUFFER:\"%s\"\n",
		r.start, r.size, len(r.data), content)
}

func (r *RingBuffer) String() string {
	return r.Dump()
}

// Len returns the number of bytes currently stored
func (r *RingBuffer) Len() int {
	return r.size
}

// Cap returns the capacity of the buffer
func (r *RingBuffer) Cap() int {
	return len(r.data)
}

// Available returns how many bytes can be written before the buffer is full.
func (r *RingBuffer) Available() int {
	if len(r.data) == 0 {
		return 0
	}
	return len(r.data) - r.size - 1
}

// Start returns the physical index of the oldest stored byte.
func (r *RingBuffer) Start() int {
	return r.start
}

// Reset discards all stored bytes
func (r *RingBuffer) Reset() {
	r.size = 0
	r.start = 0
	clear(r.data)
}

// Close releases the storage. Every later Write or Pop returns ErrClosed.
func (r *RingBuffer) Close() error {
	r.Reset()
	r.data = nil
	return nil
}

// physical maps a logical offset to its index in data.
func (r *RingBuffer) physical(offset int) int {
	return (r.start + offset) % len(r.data)
}

// segments returns the valid window split at the physical end of data. head
// is empty unless the window wraps.
func (r *RingBuffer) segments() (tail, head []byte) {
	if r.size == 0 {
		return nil, nil
	}
	end := r.start + r.size
	if end <= len(r.data) {
		return r.data[r.start:end], nil
	}
	return r.data[r.start:], r.data[:end-len(r.data)]
}

// peek copies the oldest len(dst) bytes into dst without consuming them.
// len(dst) must not exceed r.size.
func (r *RingBuffer) peek(dst []byte) {
	tail, head := r.segments()
	n := copy(dst, tail)
	copy(dst[n:], head)
}
