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

// Package csi contains support for processing the information in a CSI file (http://samtools.github.io/hts-specs/CSIv1.pdf).
package csi

import (
	"github.com/googlegenomics/featuresource/internal/bgzf"
	"github.com/googlegenomics/featuresource/internal/binary"
	"github.com/googlegenomics/featuresource/internal/index"
	"github.com/googlegenomics/featuresource/internal/tabix"
	"github.com/pkg/errors"
)

// Magic starts every decompressed CSI index.
const Magic = "CSI\x01"

// Auxiliary data shorter than this cannot hold a tabix column layout (six
// fields and the names length).
const minimumTabixAuxSize = 28

// Parse decompresses BGZF (or plain gzip) compressed CSI index data and
// parses it.
func Parse(raw []byte) (*index.Index, error) {
	data, err := bgzf.Gunzip(raw)
	if err != nil {
		return nil, &index.MalformedError{Offset: 0, Err: errors.Wrap(err, "decompressing index")}
	}
	return index.Parse(data, &Reader{})
}

// Reader contains support for reading information from CSI formatted data.
type Reader struct {
}

// Magic returns the CSI magic.
func (*Reader) Magic() string {
	return Magic
}

// ReadHeader reads the CSI formated index data header.  When the auxiliary
// data holds a tabix column layout, the sequence names are taken from it.
func (*Reader) ReadHeader(c *binary.Cursor) (*index.Header, int32, error) {
	var header index.Header
	var err error
	if header.MinShift, err = c.Int32(); err != nil {
		return nil, 0, errors.Wrap(err, "reading min_shift")
	}
	if header.Depth, err = c.Int32(); err != nil {
		return nil, 0, errors.Wrap(err, "reading depth")
	}
	length, err := c.Count(1)
	if err != nil {
		return nil, 0, errors.Wrap(err, "reading auxiliary data length")
	}
	aux, err := c.Bytes(int64(length))
	if err != nil {
		return nil, 0, errors.Wrap(err, "reading auxiliary data")
	}
	if length >= minimumTabixAuxSize {
		if err := tabix.ReadMeta(binary.NewCursor(aux), &header); err != nil {
			return nil, 0, errors.Wrap(err, "reading auxiliary data")
		}
	}

	references, err := c.Int32()
	if err != nil {
		return nil, 0, errors.Wrap(err, "reading reference count")
	}
	return &header, references, nil
}

// ReadBin reads a bin header from c.
func (*Reader) ReadBin(c *binary.Cursor) (*index.BinHeader, error) {
	id, err := c.Uint32()
	if err != nil {
		return nil, errors.Wrap(err, "reading bin ID")
	}
	offset, err := c.Uint64()
	if err != nil {
		return nil, errors.Wrap(err, "reading bin offset")
	}
	chunks, err := c.Int32()
	if err != nil {
		return nil, errors.Wrap(err, "reading chunk count")
	}
	return &index.BinHeader{ID: id, Offset: bgzf.Address(offset), Chunks: chunks}, nil
}

// ReadLinear returns nothing since CSI indexes have no linear index.
func (*Reader) ReadLinear(*binary.Cursor) ([]bgzf.Address, error) {
	return nil, nil
}
