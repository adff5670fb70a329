// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package report

import (
	"bytes"
	"testing"

	"github.com/gravwave/gw-live/bank"
	"github.com/gravwave/gw-live/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// coincRow appends one coincident trigger; exclusive columns are attached
// only when exc is true, matching what removal stages carry.
func coincRow(set *data.TriggerSet, id int64, stat, ifar, ifarExc float64, exc bool) {
	row := map[string]float64{
		data.ColEndTime:    1e9 + float64(id),
		data.ColStat:       stat,
		data.ColIfar:       ifar,
		data.ColPvalue:     1 / (1 + ifar),
		data.ColTemplateId: float64(id % 3),
		data.ColTriggerId:  float64(id),
	}
	if exc {
		row[data.ColIfarExc] = ifarExc
		row[data.ColPvalueExc] = 1 / (1 + ifarExc)
	}
	set.AppendRow(row)
}

func reportBlock() *data.Block {
	full := data.NewTriggerSet()
	coincRow(full, 1, 12, 500, 250, true)
	coincRow(full, 2, 10, 50, 30, true)
	coincRow(full, 3, 9, 20, 15, true)
	coincRow(full, 4, 8, 5, 4, true)

	// One removal drops the loudest row and the exclusive columns.
	stage1 := data.NewTriggerSet()
	coincRow(stage1, 2, 10, 80, 0, false)
	coincRow(stage1, 3, 9, 25, 0, false)
	coincRow(stage1, 4, 8, 6, 0, false)

	block := data.NewBlock()
	block.Run = "o3-test"
	block.GpsStart = 1e9
	block.GpsEnd = 1e9 + 8
	block.Coincs = []*data.TriggerSet{full, stage1}
	return block
}

func reportBank() *bank.Bank {
	return &bank.Bank{Templates: []*bank.Template{
		{Id: 0, Mass1: 1.4, Mass2: 1.4},
		{Id: 1, Mass1: 10, Mass2: 1.4},
		{Id: 2, Mass1: 30, Mass2: 30},
	}}
}

func TestBuildRanksByStat(t *testing.T) {
	r, err := Build(reportBlock(), reportBank(), 0, 0)
	require.NoError(t, err)
	require.Len(t, r.Rows, 4)

	var ids []int64
	for i, row := range r.Rows {
		assert.Equal(t, i+1, row.Rank)
		ids = append(ids, row.TriggerId)
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)

	// Stage 0 carries its own exclusive columns.
	assert.Equal(t, 250.0, r.Rows[0].IfarExc)
	assert.InDelta(t, 1.0/251, r.Rows[0].PvalueExc, 1e-12)
}

func TestBuildTruncatesToNLoudest(t *testing.T) {
	r, err := Build(reportBlock(), reportBank(), 0, 2)
	require.NoError(t, err)
	require.Len(t, r.Rows, 2)
	assert.Equal(t, int64(1), r.Rows[0].TriggerId)
	assert.Equal(t, int64(2), r.Rows[1].TriggerId)
}

func TestBuildRemovalStageTakesExclusivesFromFullDataset(t *testing.T) {
	r, err := Build(reportBlock(), reportBank(), 1, 0)
	require.NoError(t, err)
	require.Len(t, r.Rows, 3)

	// The stage's own foreground columns are reported as-is.
	assert.Equal(t, int64(2), r.Rows[0].TriggerId)
	assert.Equal(t, 80.0, r.Rows[0].Ifar)

	// The exclusive columns are looked up in the zero-removal dataset by
	// trigger id.
	assert.Equal(t, 30.0, r.Rows[0].IfarExc)
	assert.InDelta(t, 1.0/31, r.Rows[0].PvalueExc, 1e-12)
	assert.Equal(t, 15.0, r.Rows[1].IfarExc)
	assert.Equal(t, 4.0, r.Rows[2].IfarExc)
}

func TestBuildAnnotatesTemplateMasses(t *testing.T) {
	r, err := Build(reportBlock(), reportBank(), 0, 1)
	require.NoError(t, err)

	row := r.Rows[0]
	assert.Equal(t, int64(1), row.TemplateId)
	assert.Equal(t, 10.0, row.Mass1)
	assert.Equal(t, 1.4, row.Mass2)
	tmpl := &bank.Template{Mass1: 10, Mass2: 1.4}
	assert.Equal(t, tmpl.ChirpMass(), row.ChirpMass)
}

func TestBuildExcessiveRemovalIndexYieldsDiagnostic(t *testing.T) {
	block := reportBlock()
	r, err := Build(block, reportBank(), 5, 0)
	require.NoError(t, err)

	assert.True(t, r.ExceedsRemovals())
	assert.Empty(t, r.Rows)
	assert.Equal(t, 5, r.RemovalIndex)
	assert.Equal(t, 1, r.NRemovals)

	var buf bytes.Buffer
	require.NoError(t, r.RenderHTML(&buf))
	assert.Contains(t, buf.String(), "performed only 1 removal")
	assert.NotContains(t, buf.String(), "<table")
}

func TestBuildRejectsStageMissingColumns(t *testing.T) {
	block := reportBlock()
	delete(block.Coincs[1].Columns, data.ColIfar)
	_, err := Build(block, reportBank(), 1, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), data.ColIfar)

	block = reportBlock()
	delete(block.Coincs[0].Columns, data.ColIfarExc)
	_, err = Build(block, reportBank(), 0, 0)
	require.Error(t, err)

	// A removal stage also cannot be reported when the zero-removal
	// dataset dropped its exclusive columns.
	_, err = Build(block, reportBank(), 1, 0)
	assert.Error(t, err)
}

func TestBuildRejectsNegativeRemovalIndex(t *testing.T) {
	_, err := Build(reportBlock(), reportBank(), -1, 0)
	assert.Error(t, err)
}

func TestRenderHTMLTable(t *testing.T) {
	r, err := Build(reportBlock(), reportBank(), 0, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.RenderHTML(&buf))
	assert.Contains(t, buf.String(), "o3-test")
	assert.Contains(t, buf.String(), "<table")
}

func TestLoudestCandidate(t *testing.T) {
	r, err := Build(reportBlock(), reportBank(), 0, 0)
	require.NoError(t, err)

	cand, err := r.LoudestCandidate()
	require.NoError(t, err)
	assert.Equal(t, "o3-test", cand.Run)
	assert.Equal(t, int64(1), cand.TriggerId)
	assert.Equal(t, 12.0, cand.Stat)

	r.Rows = nil
	_, err = r.LoudestCandidate()
	assert.Error(t, err)
}
