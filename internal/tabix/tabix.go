// Copyright 2019 Google Inc.
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

// Package tabix contains support for processing the information in a tabix
// index file (http://samtools.github.io/hts-specs/tabix.pdf).
package tabix

import (
	"bytes"

	"github.com/googlegenomics/featuresource/internal/bgzf"
	"github.com/googlegenomics/featuresource/internal/binary"
	"github.com/googlegenomics/featuresource/internal/index"
	"github.com/pkg/errors"
)

// Magic starts every decompressed tabix index.
const Magic = "TBI\x01"

// Column layout flags stored in the format field.
const (
	FormatGeneric = 0
	FormatSAM     = 1
	FormatVCF     = 2
	FormatUCSC    = 0x10000 // Coordinates are zero-based, half-open.
)

// Parse decompresses BGZF (or plain gzip) compressed tabix index data and
// parses it.
func Parse(raw []byte) (*index.Index, error) {
	data, err := bgzf.Gunzip(raw)
	if err != nil {
		return nil, &index.MalformedError{Offset: 0, Err: errors.Wrap(err, "decompressing index")}
	}
	return index.Parse(data, &Reader{})
}

// Reader contains support for reading information from tabix formatted data.
type Reader struct {
}

// Magic returns the tabix magic.
func (*Reader) Magic() string {
	return Magic
}

// ReadHeader reads the reference count and the column layout.  Tabix always
// uses the BAI binning scheme.
func (*Reader) ReadHeader(c *binary.Cursor) (*index.Header, int32, error) {
	references, err := c.Int32()
	if err != nil {
		return nil, 0, errors.Wrap(err, "reading reference count")
	}
	header := &index.Header{
		MinShift: index.TabixMinShift,
		Depth:    index.TabixDepth,
	}
	if err := ReadMeta(c, header); err != nil {
		return nil, 0, err
	}
	return header, references, nil
}

// ReadBin reads a bin header from c.
func (*Reader) ReadBin(c *binary.Cursor) (*index.BinHeader, error) {
	id, err := c.Uint32()
	if err != nil {
		return nil, errors.Wrap(err, "reading bin ID")
	}
	chunks, err := c.Int32()
	if err != nil {
		return nil, errors.Wrap(err, "reading chunk count")
	}
	return &index.BinHeader{ID: id, Chunks: chunks}, nil
}

// ReadLinear reads the linear index of a reference.
func (*Reader) ReadLinear(c *binary.Cursor) ([]bgzf.Address, error) {
	intervals, err := c.Count(8)
	if err != nil {
		return nil, errors.Wrap(err, "reading interval count")
	}
	offsets := make([]bgzf.Address, intervals)
	for i := range offsets {
		v, err := c.Uint64()
		if err != nil {
			return nil, errors.Wrap(err, "reading offset")
		}
		offsets[i] = bgzf.Address(v)
	}
	return offsets, nil
}

// ReadMeta reads the tabix column layout and sequence names into header.  The
// same layout is used by the auxiliary data of CSI indexes.
func ReadMeta(c *binary.Cursor, header *index.Header) error {
	fields := []*int32{&header.Format, &header.ColSeq, &header.ColBeg, &header.ColEnd, &header.Meta, &header.Skip}
	for _, field := range fields {
		v, err := c.Int32()
		if err != nil {
			return errors.Wrap(err, "reading column layout")
		}
		*field = v
	}

	length, err := c.Count(1)
	if err != nil {
		return errors.Wrap(err, "reading names length")
	}
	names, err := c.Bytes(int64(length))
	if err != nil {
		return errors.Wrap(err, "reading names")
	}
	if length > 0 && names[length-1] != 0 {
		return errors.New("names are not NUL terminated")
	}
	for _, name := range bytes.Split(names, []byte{0}) {
		if len(name) > 0 {
			header.Names = append(header.Names, string(name))
		}
	}
	return nil
}
