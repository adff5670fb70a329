// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package report renders ranked tables of the loudest coincident detections
// from a persisted run file.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gravwave/gw-live/bank"
	"github.com/gravwave/gw-live/data"
)

type Row struct {
	Rank       int
	TriggerId  int64
	GpsTime    float64
	Stat       float64
	Ifar       float64
	IfarExc    float64
	Pvalue     float64
	PvalueExc  float64
	TemplateId int64
	Mass1      float64
	Mass2      float64
	ChirpMass  float64
}

type Report struct {
	Run          string
	GpsStart     float64
	GpsEnd       float64
	RemovalIndex int
	NRemovals    int
	Rows         []Row
}

// ExceedsRemovals reports whether the requested hierarchical-removal index
// asks for a stage the analysis never performed. Such reports render the
// diagnostic page instead of a table.
func (r *Report) ExceedsRemovals() bool {
	return r.RemovalIndex > r.NRemovals
}

// Open reads the results block of a run file.
func Open(ctx context.Context, urlString, credentials string) (*data.Block, error) {
	reader, err := data.GetReader(ctx, urlString, credentials)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	block := reader.Next()
	if block == nil {
		if reader.Err != nil {
			return nil, reader.Err
		}
		return nil, errors.New("results file holds no analysis block")
	}
	return block, nil
}

// Build ranks the loudest coincident triggers of the requested removal
// stage. For stages past the first, the exclusive IFAR and p-value columns
// are taken from the unmodified (zero-removal) dataset, matched by trigger
// id, since removal stages do not carry them.
func Build(block *data.Block, bk *bank.Bank, removalIndex, nLoudest int) (*Report, error) {
	if removalIndex < 0 {
		return nil, fmt.Errorf("bad removal index %v", removalIndex)
	}

	r := &Report{
		Run:          block.Run,
		GpsStart:     block.GpsStart,
		GpsEnd:       block.GpsEnd,
		RemovalIndex: removalIndex,
		NRemovals:    block.NRemovals(),
	}

	if r.ExceedsRemovals() {
		return r, nil
	}
	if len(block.Coincs) == 0 {
		return nil, errors.New("results file holds no coincident dataset")
	}

	stage := block.Coincs[removalIndex]
	if !stage.Valid() {
		return nil, fmt.Errorf("removal stage %v dataset is invalid", removalIndex)
	}

	need := []string{data.ColEndTime, data.ColStat, data.ColIfar, data.ColPvalue, data.ColTemplateId, data.ColTriggerId}
	if removalIndex == 0 {
		need = append(need, data.ColIfarExc, data.ColPvalueExc)
	}
	if err := requireColumns(stage, need...); err != nil {
		return nil, fmt.Errorf("removal stage %v: %v", removalIndex, err)
	}

	var base *data.TriggerSet
	baseRow := make(map[int64]int)
	if removalIndex > 0 {
		base = block.Coincs[0]
		if !base.Valid() {
			return nil, errors.New("zero-removal dataset is invalid")
		}
		if err := requireColumns(base, data.ColTriggerId, data.ColIfarExc, data.ColPvalueExc); err != nil {
			return nil, fmt.Errorf("zero-removal dataset: %v", err)
		}
		for i, id := range base.Col(data.ColTriggerId) {
			baseRow[int64(id)] = i
		}
	}

	stat := stage.Col(data.ColStat)
	order := make([]int, len(stat))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return stat[order[i]] > stat[order[j]] })

	if nLoudest <= 0 || nLoudest > len(order) {
		nLoudest = len(order)
	}

	for rank, row := range order[:nLoudest] {
		id := int64(stage.Col(data.ColTriggerId)[row])
		out := Row{
			Rank:      rank + 1,
			TriggerId: id,
			GpsTime:   stage.Col(data.ColEndTime)[row],
			Stat:      stat[row],
			Ifar:      stage.Col(data.ColIfar)[row],
			Pvalue:    stage.Col(data.ColPvalue)[row],
		}

		if removalIndex == 0 {
			out.IfarExc = stage.Col(data.ColIfarExc)[row]
			out.PvalueExc = stage.Col(data.ColPvalueExc)[row]
		} else if i, ok := baseRow[id]; ok {
			out.IfarExc = base.Col(data.ColIfarExc)[i]
			out.PvalueExc = base.Col(data.ColPvalueExc)[i]
		}

		out.TemplateId = int64(stage.Col(data.ColTemplateId)[row])
		if tmpl := bk.ById(out.TemplateId); tmpl != nil {
			out.Mass1 = tmpl.Mass1
			out.Mass2 = tmpl.Mass2
			out.ChirpMass = tmpl.ChirpMass()
		}

		r.Rows = append(r.Rows, out)
	}

	return r, nil
}

// requireColumns rejects a dataset that dropped any of the named columns, so
// a malformed results file reports an error instead of corrupting the table.
func requireColumns(set *data.TriggerSet, names ...string) error {
	for _, name := range names {
		if len(set.Col(name)) != set.Len() {
			return fmt.Errorf("dataset is missing column %q", name)
		}
	}
	return nil
}

// LoudestCandidate rebuilds a candidate-event record for the top-ranked row,
// for XML output.
func (r *Report) LoudestCandidate() (*data.Candidate, error) {
	if len(r.Rows) == 0 {
		return nil, errors.New("report holds no rows")
	}
	top := r.Rows[0]
	return &data.Candidate{
		Run:        r.Run,
		GpsTime:    top.GpsTime,
		Stat:       top.Stat,
		Ifar:       top.Ifar,
		Pvalue:     top.Pvalue,
		TemplateId: top.TemplateId,
		TriggerId:  top.TriggerId,
	}, nil
}
