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

// Package bed provides support for parsing BED-like tab separated text.
package bed

import (
	"bytes"
	"strconv"

	"github.com/googlegenomics/featuresource/internal/genomics"
)

const (
	// Lines with fewer columns than this are ignored.
	minimumColumns = 4

	fieldSeparator = '\t'
	lineSeparator  = '\n'
)

// Parse returns the records of text on chromosome that overlap the closed
// range [start, end].  Lines with too few columns, other chromosomes or
// unparsable coordinates are skipped.  The records of a chromosome must be
// sorted by start: parsing stops at the first matching record that starts
// after end.
func Parse(text []byte, chromosome string, start, end int64) []genomics.Feature {
	var features []genomics.Feature
	for _, line := range bytes.Split(text, []byte{lineSeparator}) {
		fields := bytes.Split(line, []byte{fieldSeparator})
		if len(fields) < minimumColumns {
			continue
		}
		if string(fields[0]) != chromosome {
			continue
		}

		featureStart, err := strconv.ParseInt(string(fields[1]), 10, 64)
		if err != nil {
			continue
		}
		featureEnd, err := strconv.ParseInt(string(fields[2]), 10, 64)
		if err != nil {
			continue
		}

		if featureStart > end {
			break
		}
		feature := genomics.Feature{
			Chromosome: chromosome,
			Start:      featureStart,
			End:        featureEnd,
			Details:    string(fields[3]),
		}
		if feature.Overlaps(start, end) {
			features = append(features, feature)
		}
	}
	return features
}
