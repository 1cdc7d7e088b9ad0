// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/antimetal/linestage/pkg/errors"
	"github.com/antimetal/linestage/pkg/ringbuffer"
	"github.com/antimetal/linestage/pkg/staging"
)

var (
	mode     = flag.String("mode", "script", "Run mode: 'script' or 'pipe'")
	capacity = flag.Int("capacity", 10, "Ring buffer capacity in bytes")
	delim    = flag.String("delim", "\n", "Record delimiter (pipe mode only, single byte)")
	verbose  = flag.Bool("v", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	// Setup logger
	var logger logr.Logger
	if *verbose {
		zapLogger, _ := zap.NewDevelopment()
		logger = zapr.NewLogger(zapLogger)
	} else {
		zapLogger, _ := zap.NewProduction()
		logger = zapr.NewLogger(zapLogger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch *mode {
	case "script":
		err = runScript(os.Stdout, *capacity, logger.WithName("script"))
	case "pipe":
		if len(*delim) != 1 {
			err = fmt.Errorf("delimiter must be a single byte, got %q", *delim)
			break
		}
		err = runPipe(ctx, os.Stdin, os.Stdout, *capacity, (*delim)[0], logger)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Error(err, "linestage failed", "mode", *mode)
		os.Exit(1)
	}
}

// runScript replays the reference write/pop sequence, printing the buffer
// after every step. Rejected calls are reported and the script carries on.
func runScript(w io.Writer, capacity int, logger logr.Logger) error {
	rb, err := ringbuffer.New(capacity)
	if err != nil {
		return err
	}
	defer rb.Close()

	step := func(name string, op func() error) {
		if err := op(); err != nil {
			logger.Info("operation rejected", "step", name, "reason", err.Error(), "retryable", errors.Retryable(err))
		}
		fmt.Fprintln(w, name)
		fmt.Fprint(w, rb.Dump())
	}
	write := func(s string) func() error {
		return func() error {
			_, err := rb.WriteString(s)
			return err
		}
	}
	pop := func(n int) func() error {
		return func() error {
			_, err := rb.Pop(n)
			return err
		}
	}

	fmt.Fprintln(w, "init")
	fmt.Fprint(w, rb.Dump())
	step("write123", write("123456789"))
	step("pop", pop(9))
	step("write123", write("123456789"))
	step("pop", pop(9))
	step("write too many, should fail", write("1234567890"))
	step("write123", write("12345678"))
	step("pop too many, should fail", pop(9))
	fmt.Fprintf(w, "Find '2' result:%d\n", rb.Find('2'))
	fmt.Fprintf(w, "Find '5' result:%d\n", rb.Find('5'))
	return nil
}

// runPipe stages r through a Stage and prints every record it yields. r is
// closed when ctx ends so that a blocked read returns.
func runPipe(ctx context.Context, r io.ReadCloser, w io.Writer, capacity int, delim byte, logger logr.Logger) error {
	s, err := staging.New(logger, staging.Config{Capacity: capacity, Delimiter: delim})
	if err != nil {
		return err
	}
	defer s.Close()

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { _ = r.Close() })
	defer stop()

	g.Go(func() error {
		defer s.CloseWrite()
		return s.Fill(gctx, r)
	})
	g.Go(func() error {
		for {
			record, err := s.Pull(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Retryable(err) {
				continue
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "record: %q\n", record)
		}
	})
	if err := g.Wait(); err != nil {
		return err
	}

	logger.V(1).Info("pipe drained", "recent", s.Recent())
	return nil
}
