// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package errors extends the standard library errors package with a marker
// for conditions that clear up on their own, such as a full or empty buffer.
package errors

import (
	stdliberrors "errors"
)

var (
	Is   = stdliberrors.Is
	Join = stdliberrors.Join
	New  = stdliberrors.New
)

func NewRetryable(text string) RetryableError {
	return &retryableError{text}
}

// Retryable reports whether any error in err's tree is a RetryableError.
func Retryable(err error) bool {
	var rerr RetryableError
	return stdliberrors.As(err, &rerr)
}

type RetryableError interface {
	error
	Retryable()
}

type retryableError struct {
	text string
}

func (r *retryableError) Error() string {
	return r.text
}

func (r *retryableError) Retryable() {}
