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

import (
	"reflect"
	"testing"
)

func TestBinsForRange(t *testing.T) {
	testCases := []struct {
		name       string
		start, end int64
		want       []uint32
	}{
		{"first position", 0, 1, []uint32{0, 1, 9, 73, 585, 4681}},
		{"across leaf bins", 16383, 16385, []uint32{0, 1, 9, 73, 585, 4681, 4682}},
		{"second level 4 bin", 1 << 17, 1<<17 + 10, []uint32{0, 1, 9, 73, 586, 4689}},
		{"empty", 5, 5, nil},
		{"inverted", 10, 5, nil},
		{"clamped to maximum", 1<<29 - 1, 1 << 40, []uint32{0, 8, 72, 584, 4680, 37448}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := BinsForRange(tc.start, tc.end, TabixMinShift, TabixDepth)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("BinsForRange(%d, %d): got %v, want %v", tc.start, tc.end, got, tc.want)
			}
		})
	}
}

func TestBinsForRange_ContainsBinFor(t *testing.T) {
	ranges := [][2]int64{{0, 1}, {100, 200}, {16000, 17000}, {1 << 20, 1<<20 + 1<<18}, {0, 1 << 29}}
	for _, r := range ranges {
		bin := BinFor(r[0], r[1], TabixMinShift, TabixDepth)
		found := false
		for _, id := range BinsForRange(r[0], r[1], TabixMinShift, TabixDepth) {
			if id == bin {
				found = true
			}
		}
		if !found {
			t.Errorf("BinsForRange(%d, %d) does not contain BinFor() = %d", r[0], r[1], bin)
		}
	}
}

func TestBinFor(t *testing.T) {
	testCases := []struct {
		name       string
		start, end int64
		minShift   int32
		depth      int32
		want       uint32
	}{
		{"leaf", 0, 1, 14, 5, 4681},
		{"second leaf", 16384, 16400, 14, 5, 4682},
		{"two leaves", 0, 16385, 14, 5, 585},
		{"root", 0, 1 << 29, 14, 5, 0},
		{"empty interval", 100, 100, 14, 5, 4681},
		{"deeper scheme", 0, 1, 14, 6, 37449},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BinFor(tc.start, tc.end, tc.minShift, tc.depth); got != tc.want {
				t.Errorf("BinFor(%d, %d): got %d, want %d", tc.start, tc.end, got, tc.want)
			}
		})
	}
}

func TestPseudoBin(t *testing.T) {
	if got, want := PseudoBin(TabixDepth), uint32(37450); got != want {
		t.Errorf("PseudoBin(%d): got %d, want %d", TabixDepth, got, want)
	}
	if got, want := MaximumPosition(TabixMinShift, TabixDepth), int64(1<<29); got != want {
		t.Errorf("MaximumPosition(): got %d, want %d", got, want)
	}
}
