// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package data defines the trigger-array data model of the analysis and the
// channel op pipelines that blocks of it flow through.
package data

import "sort"

// Column names shared by filter output and background-estimation datasets.
const (
	ColEndTime    = "end_time"
	ColSnr        = "snr"
	ColChisq      = "chisq"
	ColTemplateId = "template_id"
	ColTriggerId  = "trigger_id"

	ColStat      = "stat"
	ColIfar      = "ifar"
	ColIfarExc   = "ifar_exc"
	ColPvalue    = "pval"
	ColPvalueExc = "pval_exc"
)

// TriggerSet holds named equal-length columns describing one collection of
// triggers: one detector's filter output, or one coincident dataset.
type TriggerSet struct {
	Columns map[string][]float64
}

func NewTriggerSet() *TriggerSet {
	return &TriggerSet{Columns: make(map[string][]float64)}
}

// Len returns the common column length, or -1 when the columns have fallen
// out of step.
func (s *TriggerSet) Len() int {
	n := -1
	for _, col := range s.Columns {
		if n < 0 {
			n = len(col)
		} else if len(col) != n {
			return -1
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

// Valid reports whether the set can contribute to an aggregate. A nil set is
// the explicit invalid marker workers use for a detector they could not
// filter.
func (s *TriggerSet) Valid() bool {
	return s != nil && s.Len() >= 0
}

// Col returns the named column, or nil.
func (s *TriggerSet) Col(name string) []float64 {
	if s == nil {
		return nil
	}
	return s.Columns[name]
}

// AppendRow appends one trigger across the named columns. New columns on a
// non-empty set leave the set invalid until every row carries them.
func (s *TriggerSet) AppendRow(row map[string]float64) {
	for name, v := range row {
		s.Columns[name] = append(s.Columns[name], v)
	}
}

// Extend appends all rows of other, column by column.
func (s *TriggerSet) Extend(other *TriggerSet) {
	if other == nil {
		return
	}
	for name, col := range other.Columns {
		s.Columns[name] = append(s.Columns[name], col...)
	}
}

// ResultSet maps detector label to that detector's triggers. A nil entry
// marks the detector invalid for the block.
type ResultSet map[string]*TriggerSet

// Detectors returns the labels carrying valid triggers, sorted.
func (r ResultSet) Detectors() []string {
	dets := make([]string, 0, len(r))
	for det, triggers := range r {
		if triggers.Valid() {
			dets = append(dets, det)
		}
	}
	sort.Strings(dets)
	return dets
}
