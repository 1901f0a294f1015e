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

// Package tabixtest builds BGZF compressed BED files together with matching
// tabix and CSI indexes for use in tests.
package tabixtest

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"testing"

	hts "github.com/biogo/hts/bgzf"
	"github.com/googlegenomics/featuresource/internal/bgzf"
	"github.com/googlegenomics/featuresource/internal/index"
	kgzip "github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Column layout written to the generated indexes (tabix -p bed).
const (
	formatUCSC = 0x10000
	colSeq     = 1
	colBeg     = 2
	colEnd     = 3
	metaChar   = '#'
)

// File is a BGZF compressed feature file and the index data describing it.
type File struct {
	// Data holds the compressed file, terminated by an EOF marker block.
	Data []byte
	// Names lists the chromosomes in the order they first appear.
	Names []string

	records [][]record
}

type record struct {
	start, end int64
	first, last bgzf.Address
}

// Build compresses lines (each a tab separated BED record without the line
// terminator) into BGZF blocks of linesPerBlock lines each and records the
// virtual address range of every line.  Lines must be sorted by chromosome
// and start; lines that do not carry coordinates are stored but not indexed.
func Build(lines []string, linesPerBlock int) (*File, error) {
	if linesPerBlock <= 0 {
		return nil, errors.Errorf("invalid block size %d", linesPerBlock)
	}

	f := &File{}
	ids := make(map[string]int)
	for i := 0; i < len(lines); i += linesPerBlock {
		blockLines := lines[i:min(i+linesPerBlock, len(lines))]
		blockOffset := uint64(len(f.Data))

		var (
			payload []byte
			pending [][2]int // Records that end with the block.
		)
		for j, line := range blockLines {
			first := bgzf.NewAddress(blockOffset, uint16(len(payload)))
			payload = append(payload, line...)
			payload = append(payload, '\n')
			last := bgzf.NewAddress(blockOffset, uint16(len(payload)))

			chromosome, start, end, ok := coordinates(line)
			if !ok {
				continue
			}
			id, ok := ids[chromosome]
			if !ok {
				id = len(f.Names)
				ids[chromosome] = id
				f.Names = append(f.Names, chromosome)
				f.records = append(f.records, nil)
			}
			if j == len(blockLines)-1 {
				pending = append(pending, [2]int{id, len(f.records[id])})
			}
			f.records[id] = append(f.records[id], record{start: start, end: end, first: first, last: last})
		}

		block, err := bgzf.EncodeBlock(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding block at line %d", i)
		}
		f.Data = append(f.Data, block...)

		// A record that ends its block ends where the next block starts.
		for _, p := range pending {
			f.records[p[0]][p[1]].last = bgzf.NewAddress(uint64(len(f.Data)), 0)
		}
	}

	eof, err := bgzf.EncodeBlock(nil)
	if err != nil {
		return nil, errors.Wrap(err, "encoding EOF marker")
	}
	f.Data = append(f.Data, eof...)
	return f, nil
}

// MustBuild is like Build but fails the test on error.
func MustBuild(tb testing.TB, lines []string, linesPerBlock int) *File {
	tb.Helper()
	f, err := Build(lines, linesPerBlock)
	if err != nil {
		tb.Fatalf("Building test file failed: %v", err)
	}
	return f
}

// TabixIndex returns the uncompressed tabix index of the file.
func (f *File) TabixIndex() []byte {
	var w writer
	w.bytes([]byte("TBI\x01"))
	w.int32(int32(len(f.Names)))
	w.meta(f.Names)
	for _, records := range f.records {
		bins := binRecords(records, index.TabixMinShift, index.TabixDepth)
		w.int32(int32(len(bins.ids) + 1))
		for _, id := range bins.ids {
			w.uint32(id)
			w.chunks(bins.chunks[id])
		}
		w.pseudoBin(index.PseudoBin(index.TabixDepth), records)

		linear := linearIndex(records)
		w.int32(int32(len(linear)))
		for _, offset := range linear {
			w.uint64(uint64(offset))
		}
	}
	w.uint64(0)
	return w.buf.Bytes()
}

// CSIIndex returns the uncompressed CSI index of the file using the given
// binning scheme.  The auxiliary data carries the tabix column layout.
func (f *File) CSIIndex(minShift, depth int32) []byte {
	var aux writer
	aux.meta(f.Names)

	var w writer
	w.bytes([]byte("CSI\x01"))
	w.int32(minShift)
	w.int32(depth)
	w.int32(int32(aux.buf.Len()))
	w.bytes(aux.buf.Bytes())
	w.int32(int32(len(f.Names)))
	for _, records := range f.records {
		bins := binRecords(records, minShift, depth)
		w.int32(int32(len(bins.ids) + 1))
		for _, id := range bins.ids {
			w.uint32(id)
			w.uint64(uint64(bins.offsets[id]))
			w.chunks(bins.chunks[id])
		}
		pseudo := index.PseudoBin(depth)
		w.uint32(pseudo)
		w.uint64(0)
		w.pseudoChunks(records)
	}
	return w.buf.Bytes()
}

// Compress compresses data using an independent BGZF writer, the way index
// files are written by htslib.
func Compress(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w := hts.NewWriter(&buf, 1)
	if _, err := w.Write(data); err != nil {
		tb.Fatalf("Compressing index failed: %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("Closing BGZF writer failed: %v", err)
	}
	return buf.Bytes()
}

// Gzip compresses data as a single plain gzip member, the way gzip(1) does
// and unlike bgzip(1).
func Gzip(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w := kgzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		tb.Fatalf("Compressing index failed: %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("Closing gzip writer failed: %v", err)
	}
	return buf.Bytes()
}

func coordinates(line string) (string, int64, int64, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < 3 {
		return "", 0, 0, false
	}
	start, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", 0, 0, false
	}
	end, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return "", 0, 0, false
	}
	return fields[0], start, end, true
}

type bins struct {
	ids     []uint32
	chunks  map[uint32][]bgzf.Chunk
	offsets map[uint32]bgzf.Address
}

// binRecords assigns records to bins.  Like tabix -p bed, records are indexed
// as covering the half-open range [start, end), or the single position start
// when they are empty.  Consecutive records of one bin share a chunk.
func binRecords(records []record, minShift, depth int32) *bins {
	b := &bins{
		chunks:  make(map[uint32][]bgzf.Chunk),
		offsets: make(map[uint32]bgzf.Address),
	}
	for _, r := range records {
		id := index.BinFor(r.start, r.end, minShift, depth)
		chunks, ok := b.chunks[id]
		if !ok {
			b.ids = append(b.ids, id)
			b.offsets[id] = r.first
		}
		if n := len(chunks); n > 0 && chunks[n-1].End == r.first {
			chunks[n-1].End = r.last
			continue
		}
		b.chunks[id] = append(chunks, bgzf.Chunk{Start: r.first, End: r.last})
	}
	return b
}

// linearIndex returns the address of the first record overlapping each
// window.  Windows without records take the value of the window before them.
func linearIndex(records []record) []bgzf.Address {
	var (
		linear []bgzf.Address
		set    []bool
	)
	for _, r := range records {
		last := r.end - 1
		if last < r.start {
			last = r.start
		}
		for w := r.start >> index.TabixMinShift; w <= last>>index.TabixMinShift; w++ {
			for int64(len(linear)) <= w {
				linear = append(linear, 0)
				set = append(set, false)
			}
			if !set[w] {
				linear[w], set[w] = r.first, true
			}
		}
	}
	for i := 1; i < len(linear); i++ {
		if !set[i] {
			linear[i] = linear[i-1]
		}
	}
	return linear
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) bytes(b []byte) {
	w.buf.Write(b)
}

func (w *writer) int32(v int32) {
	binary.Write(&w.buf, binary.LittleEndian, v)
}

func (w *writer) uint32(v uint32) {
	binary.Write(&w.buf, binary.LittleEndian, v)
}

func (w *writer) uint64(v uint64) {
	binary.Write(&w.buf, binary.LittleEndian, v)
}

func (w *writer) chunks(chunks []bgzf.Chunk) {
	w.int32(int32(len(chunks)))
	for _, c := range chunks {
		w.uint64(uint64(c.Start))
		w.uint64(uint64(c.End))
	}
}

// meta writes the tabix column layout followed by the sequence names.
func (w *writer) meta(names []string) {
	for _, v := range []int32{formatUCSC, colSeq, colBeg, colEnd, metaChar, 0} {
		w.int32(v)
	}
	var block []byte
	for _, name := range names {
		block = append(block, name...)
		block = append(block, 0)
	}
	w.int32(int32(len(block)))
	w.bytes(block)
}

func (w *writer) pseudoBin(id uint32, records []record) {
	w.uint32(id)
	w.pseudoChunks(records)
}

// pseudoChunks writes the metadata stored in the pseudo-bin: the address
// range of the reference and its mapped and unmapped record counts.
func (w *writer) pseudoChunks(records []record) {
	w.int32(2)
	if len(records) > 0 {
		w.uint64(uint64(records[0].first))
		w.uint64(uint64(records[len(records)-1].last))
	} else {
		w.uint64(0)
		w.uint64(0)
	}
	w.uint64(uint64(len(records)))
	w.uint64(0)
}
