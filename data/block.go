// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

// RunHeader carries run-level metadata written once at the head of a run
// file or stream.
type RunHeader struct {
	Run        string
	Detectors  []string
	BankFile   string
	SampleRate float64
	GpsStart   float64
	Metadata   map[string]string
}

// Block is the unit of data flowing through op pipelines: the merged filter
// output of one analysis iteration, plus the background-estimation arrays
// attached by the coordinator.
type Block struct {
	Run      string
	Seq      uint64
	GpsStart float64
	GpsEnd   float64

	// Results holds the merged per-detector trigger columns.
	Results ResultSet

	// Coincs[0] is the full coincident dataset for the block. Successive
	// entries, when present, are the datasets after each hierarchical
	// removal stage. Only Coincs[0] carries the exclusive columns.
	Coincs []*TriggerSet

	// Psds holds one noise-floor array per detector when PSD storage is
	// requested.
	Psds map[string][]float64

	// LoudestIndex is the row index of the loudest coincident trigger in
	// Coincs[0], or -1 when not stored.
	LoudestIndex int

	Metadata map[string]string
}

func NewBlock() *Block {
	return &Block{
		Results:      make(ResultSet),
		LoudestIndex: -1,
		Metadata:     make(map[string]string),
	}
}

// NRemovals reports how many hierarchical removal stages the block carries.
func (b *Block) NRemovals() int {
	if len(b.Coincs) == 0 {
		return 0
	}
	return len(b.Coincs) - 1
}
