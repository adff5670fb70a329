// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

// Merge gathers per-worker results for one analysis block into a single
// ResultSet. Columns are concatenated in worker order. A detector reported
// invalid by any contributing worker is excluded from the merged output, as
// is any detector whose columns have fallen out of step.
func Merge(results []ResultSet) ResultSet {
	merged := make(ResultSet)
	disabled := make(map[string]bool)

	for _, result := range results {
		for det, triggers := range result {
			if disabled[det] {
				continue
			}
			if !triggers.Valid() {
				disabled[det] = true
				delete(merged, det)
				continue
			}

			set, ok := merged[det]
			if !ok {
				set = NewTriggerSet()
				merged[det] = set
			}
			set.Extend(triggers)
		}
	}

	return merged
}

// MergeStream forwards blocks unmodified. It exists to join fan-in stages in
// an op pipeline at a controlled buffer depth.
func MergeStream(input <-chan *Block, output chan<- *Block) {
	for block := range input {
		output <- block
	}
}
