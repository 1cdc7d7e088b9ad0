// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antimetal/linestage/pkg/ringbuffer"
)

const expectedScript = `init
ZeroIndex:0,Size:0,Capacity:10
BUFFER:""
write123
ZeroIndex:0,Size:9,Capacity:10
BUFFER:"123456789"
pop
ZeroIndex:9,Size:0,Capacity:10
BUFFER:""
write123
ZeroIndex:9,Size:9,Capacity:10
BUFFER:"123456789"
pop
ZeroIndex:8,Size:0,Capacity:10
BUFFER:""
write too many, should fail
ZeroIndex:8,Size:0,Capacity:10
BUFFER:""
write123
ZeroIndex:8,Size:8,Capacity:10
BUFFER:"12345678"
pop too many, should fail
ZeroIndex:8,Size:8,Capacity:10
BUFFER:"12345678"
Find '2' result:1
Find '5' result:4
`

func TestRunScript(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runScript(&out, 10, logr.Discard()))
	assert.Equal(t, expectedScript, out.String())

	err := runScript(&out, 0, logr.Discard())
	assert.ErrorIs(t, err, ringbuffer.ErrInvalidCapacity)
}

func TestRunPipe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	in := io.NopCloser(strings.NewReader("AT\r\nOK\r\nERROR\r\n"))
	require.NoError(t, runPipe(ctx, in, &out, 10, '\n', logr.Discard()))
	assert.Equal(t, "record: \"AT\\r\"\nrecord: \"OK\\r\"\nrecord: \"ERROR\\r\"\n", out.String())
}
