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

// Package index contains support for processing the information in a index file.
package index

import (
	"fmt"

	"github.com/googlegenomics/featuresource/internal/bgzf"
	"github.com/googlegenomics/featuresource/internal/binary"
	"github.com/pkg/errors"
)

const (
	// Each chunk is stored as a pair of virtual addresses.
	chunkSize = 16

	// Bin headers are at least an ID and a chunk count.
	minimumBinSize = 8

	// A reference holds at least its bin count.
	minimumReferenceSize = 4
)

// MalformedError reports index data that is structurally invalid.
type MalformedError struct {
	Offset int
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed index at offset %d: %v", e.Offset, e.Err)
}

// Unwrap returns the underlying cause.
func (e *MalformedError) Unwrap() error {
	return e.Err
}

// Header holds the binning scheme and the column layout of the indexed file.
type Header struct {
	// MinShift is the number of bits for the minimal interval and Depth is the
	// depth of the binning index.
	MinShift, Depth int32

	// Format, ColSeq, ColBeg, ColEnd, Meta and Skip describe the layout of the
	// indexed text file as recorded by tabix.
	Format                 int32
	ColSeq, ColBeg, ColEnd int32
	Meta                   int32
	Skip                   int32

	// Names lists the sequence names in reference ID order.
	Names []string
}

// Bin represents a contignous genomic region.
type Bin struct {
	// ID is an identifier for the bin.
	ID uint32
	// Offset is the (virtual) file offset of the first overlapping record.
	// It is only recorded by CSI indexes.
	Offset bgzf.Address
	// Chunks holds the chunks of the bin in file order.
	Chunks []bgzf.Chunk
}

// Reference holds the index data for a single reference sequence.
type Reference struct {
	Bins map[uint32]*Bin
	// Linear holds the smallest virtual offset of the records overlapping each
	// window of 1<<MinShift positions.  It is empty for CSI indexes.
	Linear []bgzf.Address
}

// Index is a fully parsed tabix or CSI index.  An Index is never modified
// after Parse returns it and is safe for concurrent use.
type Index struct {
	Header
	References []Reference
	// Unplaced is the number of records without coordinates, if the index
	// records it.
	Unplaced *uint64

	sequenceIDs map[string]int
}

// BinHeader is the fixed part of a bin as stored in the index.
type BinHeader struct {
	ID     uint32
	Offset bgzf.Address
	Chunks int32
}

// Reader is an interface for reading format specific information from index data.
type Reader interface {
	// Magic returns the magic bytes that start the index data.
	Magic() string
	// ReadHeader reads the data between the magic and the first reference,
	// including the binning scheme's width (the number of bits for the minimal
	// interval) and depth, and returns it with the number of references.
	ReadHeader(*binary.Cursor) (*Header, int32, error)
	// ReadBin reads a bin header.
	ReadBin(*binary.Cursor) (*BinHeader, error)
	// ReadLinear reads the linear index that follows the bins of a
	// reference.
	ReadLinear(*binary.Cursor) ([]bgzf.Address, error)
}

// Parse parses decompressed index data using the format specific reader.
// Any read past the end of data or any count that is inconsistent with the
// remaining data results in a *MalformedError and no index.
func Parse(data []byte, reader Reader) (*Index, error) {
	c := binary.NewCursor(data)
	fail := func(context string, err error) (*Index, error) {
		return nil, &MalformedError{c.Offset(), errors.Wrap(err, context)}
	}

	if err := c.ExpectBytes([]byte(reader.Magic())); err != nil {
		return fail("checking magic", err)
	}

	header, references, err := reader.ReadHeader(c)
	if err != nil {
		return fail("reading header", err)
	}
	if header.MinShift <= 0 || header.Depth < 0 || header.MinShift+3*header.Depth > 62 {
		return fail("checking binning scheme", errors.Errorf("unsupported min_shift %d and depth %d", header.MinShift, header.Depth))
	}

	if references < 0 {
		return fail("checking reference count", errors.Errorf("negative reference count %d", references))
	}
	if err := c.Require(int64(references) * minimumReferenceSize); err != nil {
		return fail("checking reference count", err)
	}
	if len(header.Names) > 0 && len(header.Names) != int(references) {
		return fail("checking names", errors.Errorf("%d names for %d references", len(header.Names), references))
	}

	index := &Index{
		Header:      *header,
		References:  make([]Reference, references),
		sequenceIDs: make(map[string]int, len(header.Names)),
	}
	for i, name := range header.Names {
		if _, ok := index.sequenceIDs[name]; ok {
			return fail("checking names", errors.Errorf("duplicate sequence name %q", name))
		}
		index.sequenceIDs[name] = i
	}

	pseudo := PseudoBin(header.Depth)
	for i := range index.References {
		binCount, err := c.Count(minimumBinSize)
		if err != nil {
			return fail(fmt.Sprintf("reading bin count of reference %d", i), err)
		}

		bins := make(map[uint32]*Bin, binCount)
		for j := int32(0); j < binCount; j++ {
			h, err := reader.ReadBin(c)
			if err != nil {
				return fail("reading bin header", err)
			}
			if h.Chunks < 0 {
				return fail("reading bin header", errors.Errorf("negative chunk count %d in bin %d", h.Chunks, h.ID))
			}
			if err := c.Require(int64(h.Chunks) * chunkSize); err != nil {
				return fail(fmt.Sprintf("reading chunks of bin %d", h.ID), err)
			}

			chunks := make([]bgzf.Chunk, h.Chunks)
			for k := range chunks {
				start, err := c.Uint64()
				if err != nil {
					return fail("reading chunk start", err)
				}
				end, err := c.Uint64()
				if err != nil {
					return fail("reading chunk end", err)
				}
				chunks[k] = bgzf.Chunk{Start: bgzf.Address(start), End: bgzf.Address(end)}
			}

			// The pseudo-bin carries metadata, not chunks.
			if h.ID == pseudo {
				continue
			}
			if bin, ok := bins[h.ID]; ok {
				bin.Chunks = append(bin.Chunks, chunks...)
				continue
			}
			bins[h.ID] = &Bin{ID: h.ID, Offset: h.Offset, Chunks: chunks}
		}

		linear, err := reader.ReadLinear(c)
		if err != nil {
			return fail(fmt.Sprintf("reading linear index of reference %d", i), err)
		}
		index.References[i] = Reference{Bins: bins, Linear: linear}
	}

	if c.Remaining() >= 8 {
		unplaced, err := c.Uint64()
		if err != nil {
			return fail("reading unplaced count", err)
		}
		index.Unplaced = &unplaced
	}
	return index, nil
}

// ReferenceID returns the reference ID for the named sequence.
func (index *Index) ReferenceID(name string) (int, bool) {
	id, ok := index.sequenceIDs[name]
	return id, ok
}

// Chunks returns the chunks that may contain records overlapping the closed
// interval [start, end] of the reference, merged so that no two returned
// chunks overlap.  Adjacent chunks are joined as long as the estimated size of
// the result stays within sizeLimit.  It never omits a chunk that holds an
// overlapping record.
func (index *Index) Chunks(referenceID int, start, end int64, sizeLimit uint64) []*bgzf.Chunk {
	if referenceID < 0 || referenceID >= len(index.References) || end < start {
		return nil
	}
	if start < 0 {
		start = 0
	}
	limit := MaximumPosition(index.MinShift, index.Depth)
	if start >= limit {
		return nil
	}
	if end >= limit {
		end = limit - 1
	}

	reference := &index.References[referenceID]

	// BED records are indexed over [start, end) but match a query that starts
	// at their end, so the search begins one position early.
	first := start
	if first > 0 {
		first--
	}

	// Records overlapping the first window of the search start no earlier
	// than its linear index entry, and later records follow them in the file.
	var firstRecord bgzf.Address
	if window := first >> uint(index.MinShift); window < int64(len(reference.Linear)) {
		firstRecord = reference.Linear[window]
	}

	var candidates []*bgzf.Chunk
	for _, id := range BinsForRange(first, end+1, index.MinShift, index.Depth) {
		bin, ok := reference.Bins[id]
		if !ok {
			continue
		}
		for _, chunk := range bin.Chunks {
			if chunk.End < firstRecord || chunk.End < bin.Offset {
				continue
			}
			chunk := chunk
			candidates = append(candidates, &chunk)
		}
	}
	return bgzf.Merge(candidates, sizeLimit)
}
