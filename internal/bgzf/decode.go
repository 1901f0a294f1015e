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

package bgzf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// The fixed part of a gzip member header up to and including XLEN.
const fixedHeaderSize = 12

// CorruptBlockError reports a BGZF block that could not be decoded.  Offset
// is relative to the start of the buffer passed to the decoder.
type CorruptBlockError struct {
	Offset int
	Err    error
}

func (e *CorruptBlockError) Error() string {
	return fmt.Sprintf("corrupt BGZF block at offset %d: %v", e.Offset, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CorruptBlockError) Unwrap() error {
	return e.Err
}

// Decode decodes the concatenated BGZF blocks in raw, starting at offset 0,
// and returns their payloads joined in order.  Decoding stops when raw is
// exhausted or when an empty block (such as the EOF marker) is reached.
func Decode(raw []byte) ([]byte, error) {
	var out []byte
	for pos := 0; pos < len(raw); {
		data, size, err := decodeBlockAt(raw, pos)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			break
		}
		out = append(out, data...)
		pos += size
	}
	return out, nil
}

// Gunzip is like Decode but also accepts plain gzip data, whose members lack
// the BGZF block size field.  Data that does not start with a gzip header is
// reported by Decode.
func Gunzip(raw []byte) ([]byte, error) {
	if !isPlainGzip(raw) {
		return Decode(raw)
	}
	gzr, err := kgzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &CorruptBlockError{0, errors.Wrap(err, "reading gzip header")}
	}
	defer gzr.Close()
	data, err := io.ReadAll(gzr)
	if err != nil {
		return nil, &CorruptBlockError{0, errors.Wrap(err, "decompressing gzip data")}
	}
	return data, nil
}

// Peek returns up to n bytes from the start of the BGZF or gzip compressed
// data in raw.  Fewer bytes are returned if the data is shorter.
func Peek(raw []byte, n int) ([]byte, error) {
	gzr, err := kgzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &CorruptBlockError{0, errors.Wrap(err, "reading gzip header")}
	}
	defer gzr.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(gzr, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, &CorruptBlockError{0, errors.Wrap(err, "decompressing data")}
	}
	return buf[:read], nil
}

// isPlainGzip reports whether raw starts with a gzip member header that has
// no BC subfield.
func isPlainGzip(raw []byte) bool {
	if len(raw) < fixedHeaderSize || raw[0] != 0x1f || raw[1] != 0x8b || raw[2] != 8 {
		return false
	}
	if raw[3]&0x04 == 0 {
		return true
	}
	xlen := int(binary.LittleEndian.Uint16(raw[10:]))
	if len(raw) < fixedHeaderSize+xlen {
		return false
	}
	_, err := blockSizeFromExtra(raw[fixedHeaderSize : fixedHeaderSize+xlen])
	return err != nil
}

// DecodeChunk decodes the data covered by chunk.  raw must start at the
// compressed block containing chunk.Start and extend at least to the end of
// the block containing chunk.End; any bytes after that block are ignored, so
// raw may end with a partial block.  The returned data begins at
// chunk.Start.DataOffset() in the first block and stops at
// chunk.End.DataOffset() in the last one.
func DecodeChunk(raw []byte, chunk Chunk) ([]byte, error) {
	if chunk.End < chunk.Start {
		return nil, &CorruptBlockError{0, errors.Errorf("chunk %s ends before it starts", &chunk)}
	}
	span := chunk.End.BlockOffset() - chunk.Start.BlockOffset()

	var (
		out     []byte
		pos     uint64
		lastEnd = -1 // Length of out before the block at span.
	)
	for pos <= span && pos < uint64(len(raw)) {
		data, size, err := decodeBlockAt(raw, int(pos))
		if err != nil {
			return nil, err
		}
		if pos == span {
			lastEnd = len(out)
		}
		out = append(out, data...)
		pos += uint64(size)
	}

	if lastEnd < 0 {
		switch {
		case pos == span && chunk.End.DataOffset() == 0:
			// The chunk ends exactly where the data ends.
			lastEnd = len(out)
		case pos > span:
			return nil, &CorruptBlockError{int(span), errors.Errorf("chunk end %s is not on a block boundary", chunk.End)}
		default:
			return nil, &CorruptBlockError{len(raw), errors.Errorf("data ends before the block at offset %d", span)}
		}
	}

	start, end := int(chunk.Start.DataOffset()), lastEnd+int(chunk.End.DataOffset())
	if end > len(out) || start > end {
		return nil, &CorruptBlockError{0, errors.Errorf("chunk %s outside of %d decoded bytes", &chunk, len(out))}
	}
	return out[start:end], nil
}

// decodeBlockAt decodes the block that starts at raw[pos] and returns its
// payload and compressed size.
func decodeBlockAt(raw []byte, pos int) ([]byte, int, error) {
	header := raw[pos:]
	if len(header) < fixedHeaderSize {
		return nil, 0, &CorruptBlockError{pos, errors.Errorf("truncated header (%d bytes)", len(header))}
	}
	if header[0] != 0x1f || header[1] != 0x8b || header[2] != 8 || header[3]&0x04 == 0 {
		return nil, 0, &CorruptBlockError{pos, errors.Errorf("not a BGZF block header: %x", header[:4])}
	}
	xlen := int(binary.LittleEndian.Uint16(header[10:]))
	if len(header) < fixedHeaderSize+xlen {
		return nil, 0, &CorruptBlockError{pos, errors.New("truncated extra field")}
	}
	size, err := blockSizeFromExtra(header[fixedHeaderSize : fixedHeaderSize+xlen])
	if err != nil {
		return nil, 0, &CorruptBlockError{pos, err}
	}
	if size < fixedHeaderSize+xlen+8 {
		return nil, 0, &CorruptBlockError{pos, errors.Errorf("declared block size %d too small", size)}
	}
	if size > len(header) {
		return nil, 0, &CorruptBlockError{pos, errors.Errorf("declared block size %d exceeds remaining input (%d bytes)", size, len(header))}
	}

	block := header[:size]
	data, _, err := DecodeBlock(bytes.NewReader(block))
	if err != nil {
		return nil, 0, &CorruptBlockError{pos, err}
	}
	if isize := binary.LittleEndian.Uint32(block[size-4:]); int(isize) != len(data) {
		return nil, 0, &CorruptBlockError{pos, errors.Errorf("decoded %d bytes, block declares %d", len(data), isize)}
	}
	return data, size, nil
}
