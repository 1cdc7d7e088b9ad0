// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package staging frames delimited text records on top of a ring buffer so
// that the reader and the writer of a serial or socket channel can run at
// different speeds.
package staging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"

	"github.com/antimetal/linestage/pkg/errors"
	"github.com/antimetal/linestage/pkg/ringbuffer"
)

const (
	// Size of each read issued by Fill
	readChunkSize = 4096
)

var (
	ErrRecordTooLarge    = errors.New("record does not fit in stage")
	ErrDelimiterInRecord = errors.New("record contains the delimiter")
	ErrWriteClosed       = errors.New("stage is closed for writing")
	ErrNoRecord          = errors.NewRetryable("no complete record staged")
)

// Stage serializes access to a ring buffer shared by one producer and one
// consumer. Producers either Push whole records or Fill from a byte stream;
// consumers take records with Next or Pull.
type Stage struct {
	mu         sync.Mutex
	buf        *ringbuffer.RingBuffer
	delim      byte
	history    *history
	writeDone  bool
	closed     bool
	maxWait    time.Duration
	newBackOff func() backoff.BackOff
	logger     logr.Logger
}

type Option func(*Stage)

// WithBackOff overrides the backoff policy used while waiting for space or
// records. newBackOff is called once per wait.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Stage) {
		if newBackOff != nil {
			s.newBackOff = newBackOff
		}
	}
}

func New(logger logr.Logger, config Config, opts ...Option) (*Stage, error) {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	config.ApplyDefaults()

	buf, err := ringbuffer.New(config.Capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create ring buffer: %w", err)
	}

	s := &Stage{
		buf:     buf,
		delim:   config.Delimiter,
		history: newHistory(max(config.HistorySize, 0)),
		maxWait: config.MaxWait,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = config.RetryInitialInterval
			b.MaxInterval = config.RetryMaxInterval
			return b
		},
		logger: logger.WithName("stage"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Push stages record followed by the delimiter. The record is written in one
// piece; while there is not enough room Push waits for the consumer. A record
// that already contains the delimiter is rejected with ErrDelimiterInRecord,
// since Next would hand it back as several records.
func (s *Stage) Push(ctx context.Context, record []byte) error {
	if i := bytes.IndexByte(record, s.delim); i >= 0 {
		return fmt.Errorf("%w at offset %d", ErrDelimiterInRecord, i)
	}

	framed := make([]byte, len(record)+1)
	copy(framed, record)
	framed[len(record)] = s.delim

	_, err := retry(ctx, s, "push", func() (int, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.writable(); err != nil {
			return 0, err
		}
		if limit := s.buf.Cap() - 1; len(framed) > limit {
			return 0, fmt.Errorf("%w: %d bytes framed, at most %d staged", ErrRecordTooLarge, len(framed), limit)
		}
		return s.buf.Write(framed)
	})
	return err
}

// Fill copies r into the stage until r returns io.EOF. Bytes are staged as
// soon as they fit, so a record may be split across several writes. Fill
// does not close the write side.
func (s *Stage) Fill(ctx context.Context, r io.Reader) error {
	chunk := make([]byte, readChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if werr := s.write(ctx, chunk[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read from source: %w", err)
		}
	}
}

func (s *Stage) write(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		n, err := retry(ctx, s, "fill", func() (int, error) {
			s.mu.Lock()
			defer s.mu.Unlock()

			if err := s.writable(); err != nil {
				return 0, err
			}
			k := min(len(p), s.buf.Available())
			if k == 0 {
				return 0, ringbuffer.ErrInsufficientSpace
			}
			return s.buf.Write(p[:k])
		})
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Next returns the oldest complete record without its delimiter. It returns
// ErrNoRecord when no delimiter is staged yet.
//
// A full stage without a delimiter is flushed as a single record, as is
// whatever remains once the write side is closed. After that Next returns
// io.EOF.
func (s *Stage) Next() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ringbuffer.ErrClosed
	}

	var (
		record []byte
		err    error
	)
	if i := s.buf.Find(s.delim); i != ringbuffer.NotFound {
		record, err = s.buf.Pop(i + 1)
		if err != nil {
			return nil, err
		}
		record = record[:i]
	} else {
		switch {
		case s.buf.Len() > 0 && s.buf.Available() == 0:
			s.logger.Info("record exceeds stage capacity, flushing", "bytes", s.buf.Len())
			record, err = s.buf.Pop(s.buf.Len())
		case s.buf.Len() > 0 && s.writeDone:
			record, err = s.buf.Pop(s.buf.Len())
		case s.writeDone:
			return nil, io.EOF
		default:
			return nil, ErrNoRecord
		}
		if err != nil {
			return nil, err
		}
	}

	s.history.add(string(record))
	return record, nil
}

// Pull is like Next but waits for a record to be staged.
func (s *Stage) Pull(ctx context.Context) ([]byte, error) {
	return retry(ctx, s, "pull", s.Next)
}

// CloseWrite marks the producer as finished. Records already staged can
// still be read.
func (s *Stage) CloseWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.writeDone {
		s.writeDone = true
		s.logger.V(1).Info("write side closed", "pending", s.buf.Len())
	}
}

// Close releases the underlying buffer. Staged bytes are discarded.
func (s *Stage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if n := s.buf.Len(); n > 0 {
		s.logger.Info("discarding staged bytes", "bytes", n)
	}
	s.writeDone = true
	s.closed = true
	return s.buf.Close()
}

// Recent returns the last delivered records, oldest first.
func (s *Stage) Recent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.all()
}

func (s *Stage) Dump() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Dump()
}

// Len returns the number of staged bytes
func (s *Stage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// writable must be called with mu held.
func (s *Stage) writable() error {
	if s.closed {
		return ringbuffer.ErrClosed
	}
	if s.writeDone {
		return ErrWriteClosed
	}
	return nil
}

// retry runs op until it succeeds or fails with an error that is not
// retryable. Retryable failures stop after maxWait with the last error.
func retry[T any](ctx context.Context, s *Stage, name string, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err != nil && !errors.Retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxElapsedTime(s.maxWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.V(1).Info("waiting on stage", "op", name, "reason", err.Error(), "retryIn", next)
		}),
	)
}
