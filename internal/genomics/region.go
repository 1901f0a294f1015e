// Package genomics contains definitions related to Genomic data.
package genomics

import "fmt"

// Interval defines a closed range of positions on a named chromosome.
type Interval struct {
	Chromosome string `json:"chr"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
}

func (interval Interval) String() string {
	return fmt.Sprintf("%s:%d-%d", interval.Chromosome, interval.Start, interval.End)
}

// Feature is a single record of a BED-like file.  Start and End are the
// values of the second and third columns as written in the file and Details
// holds the fourth column.
type Feature struct {
	Chromosome string `json:"chr"`
	Start      int64  `json:"start"`
	End        int64  `json:"end"`
	Details    string `json:"details"`
}

// Overlaps reports whether the feature overlaps the closed range
// [start, end].
func (f Feature) Overlaps(start, end int64) bool {
	return f.End >= start && f.Start <= end
}
