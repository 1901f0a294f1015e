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

package bed

import (
	"reflect"
	"strings"
	"testing"

	"github.com/googlegenomics/featuresource/internal/genomics"
)

const testText = "chr1\t100\t200\tA\n" +
	"chr1\t300\t400\tB\n" +
	"chr2\t50\t60\tC\n"

func feature(chromosome string, start, end int64, details string) genomics.Feature {
	return genomics.Feature{Chromosome: chromosome, Start: start, End: end, Details: details}
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name       string
		text       string
		chromosome string
		start, end int64
		want       []genomics.Feature
	}{
		{"both records", testText, "chr1", 150, 350, []genomics.Feature{
			feature("chr1", 100, 200, "A"),
			feature("chr1", 300, 400, "B"),
		}},
		{"other chromosome", testText, "chr2", 0, 100, []genomics.Feature{feature("chr2", 50, 60, "C")}},
		{"absent chromosome", testText, "chr3", 0, 1000, nil},
		{"start equals query end", testText, "chr1", 250, 300, []genomics.Feature{feature("chr1", 300, 400, "B")}},
		{"start after query end", testText, "chr1", 250, 299, nil},
		{"end equals query start", testText, "chr1", 200, 250, []genomics.Feature{feature("chr1", 100, 200, "A")}},
		{"end before query start", testText, "chr1", 201, 250, nil},
		{"short lines", "chr1\t100\t200\nchr1\t100\nchr1\t150\t160\tX\n", "chr1", 0, 1000, []genomics.Feature{
			feature("chr1", 150, 160, "X"),
		}},
		{"extra columns", "chr1\t1\t2\tname\t0\t+\n", "chr1", 0, 10, []genomics.Feature{feature("chr1", 1, 2, "name")}},
		{"unparsable coordinates", "chr1\tx\t200\tA\nchr1\t10\ty\tB\nchr1\t10\t20\tC\n", "chr1", 0, 100, []genomics.Feature{
			feature("chr1", 10, 20, "C"),
		}},
		{"no trailing newline", "chr1\t1\t2\tA", "chr1", 0, 10, []genomics.Feature{feature("chr1", 1, 2, "A")}},
		{"carriage returns are kept", "chr1\t1\t2\tA\r\n", "chr1", 0, 10, []genomics.Feature{feature("chr1", 1, 2, "A\r")}},
		{"empty", "", "chr1", 0, 10, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Parse([]byte(tc.text), tc.chromosome, tc.start, tc.end)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Parse(%q, %d, %d): got %v, want %v", tc.chromosome, tc.start, tc.end, got, tc.want)
			}
		})
	}
}

func TestParse_StopsAfterEnd(t *testing.T) {
	// Parsing relies on sorted input: once a record starts after the query,
	// the unsorted record that follows is never seen.
	text := "chr1\t100\t200\tA\nchr1\t500\t600\tB\nchr1\t150\t160\tC\n"
	got := Parse([]byte(text), "chr1", 0, 300)
	if want := []genomics.Feature{feature("chr1", 100, 200, "A")}; !reflect.DeepEqual(got, want) {
		t.Errorf("Parse(): got %v, want %v", got, want)
	}

	// Records of other chromosomes do not stop parsing.
	text = "chr2\t900\t1000\tX\nchr1\t100\t200\tA\n"
	got = Parse([]byte(text), "chr1", 0, 300)
	if want := []genomics.Feature{feature("chr1", 100, 200, "A")}; !reflect.DeepEqual(got, want) {
		t.Errorf("Parse(): got %v, want %v", got, want)
	}
}

func BenchmarkParse(b *testing.B) {
	var text strings.Builder
	for i := 0; i < 10000; i++ {
		text.WriteString("chr1\t123456\t123789\tfeature\n")
	}
	data := []byte(text.String())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Parse(data, "chr1", 0, 200000)
	}
}
