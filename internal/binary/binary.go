// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package binary provides support for operating on binary data.
package binary

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned (wrapped) by Cursor methods that would read past
// the end of the underlying buffer.
var ErrShortBuffer = errors.New("read past end of buffer")

// Cursor reads little endian values from an in-memory buffer.  Every read is
// checked against the remaining length of the buffer.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor returns a Cursor positioned at the start of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int {
	return c.pos
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.data) - c.pos
}

// Require checks that at least n more bytes can be read.
func (c *Cursor) Require(n int64) error {
	if n < 0 || n > int64(c.Remaining()) {
		return errors.Wrapf(ErrShortBuffer, "need %d bytes at offset %d, have %d", n, c.pos, c.Remaining())
	}
	return nil
}

// Bytes returns the next n bytes.  The returned slice aliases the buffer.
func (c *Cursor) Bytes(n int64) ([]byte, error) {
	if err := c.Require(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+int(n)]
	c.pos += int(n)
	return b, nil
}

// ExpectBytes consumes len(want) bytes and checks that they match want.
func (c *Cursor) ExpectBytes(want []byte) error {
	got, err := c.Bytes(int64(len(want)))
	if err != nil {
		return errors.Wrap(err, "reading magic")
	}
	if !bytes.Equal(got, want) {
		return errors.Errorf("wrong magic %q (wanted %q)", got, want)
	}
	return nil
}

// Uint32 reads a little endian uint32.
func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Int32 reads a little endian int32.
func (c *Cursor) Int32() (int32, error) {
	v, err := c.Uint32()
	return int32(v), err
}

// Uint64 reads a little endian uint64.
func (c *Cursor) Uint64() (uint64, error) {
	b, err := c.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Count reads an int32 element count and checks that count elements of
// elementSize bytes each can still be read from the buffer.
func (c *Cursor) Count(elementSize int64) (int32, error) {
	n, err := c.Int32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.Errorf("negative count %d at offset %d", n, c.pos-4)
	}
	if err := c.Require(int64(n) * elementSize); err != nil {
		return 0, errors.Wrapf(err, "count %d", n)
	}
	return n, nil
}
