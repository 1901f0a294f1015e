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

package index

const (
	// TabixMinShift and TabixDepth describe the fixed binning scheme of tabix
	// (and BAI) indexes: 16kb leaf bins, 512Mb root bin.
	TabixMinShift = 14
	TabixDepth    = 5

	// LinearWindowSize is the size of each tiling window of the linear index.
	LinearWindowSize = 1 << TabixMinShift
)

// BinsForRange returns the IDs of all bins that overlap the half-open
// interval [start, end).  This is derived from the C examples in the CSI
// index specification.
func BinsForRange(start, end int64, minShift, depth int32) []uint32 {
	maxWidth := MaximumPosition(minShift, depth)
	if end > maxWidth {
		end = maxWidth
	}
	if start < 0 {
		start = 0
	}
	if end <= start {
		return nil
	}

	end--
	var bins []uint32
	for l, t, s := uint(0), uint32(0), uint(minShift+depth*3); l <= uint(depth); l++ {
		b := t + uint32(start>>s)
		e := t + uint32(end>>s)
		for i := b; i <= e; i++ {
			bins = append(bins, i)
		}
		s -= 3
		t += 1 << (l * 3)
	}
	return bins
}

// BinFor returns the smallest bin that fully contains the half-open interval
// [start, end).  Empty intervals are treated as covering start.
func BinFor(start, end int64, minShift, depth int32) uint32 {
	if end <= start {
		end = start + 1
	}
	end--
	s := uint(minShift)
	t := uint32((1<<(uint(depth)*3) - 1) / 7)
	for l := uint(depth); l > 0; l-- {
		if start>>s == end>>s {
			return t + uint32(start>>s)
		}
		s += 3
		t -= 1 << ((l - 1) * 3)
	}
	return 0
}

// PseudoBin returns the ID of the bin that holds index metadata for the
// given depth (37450 for tabix).
func PseudoBin(depth int32) uint32 {
	return uint32((1<<(uint(depth+1)*3)-1)/7 + 1)
}

// MaximumPosition returns the first position that the binning scheme cannot
// represent.
func MaximumPosition(minShift, depth int32) int64 {
	return int64(1) << uint(minShift+depth*3)
}
