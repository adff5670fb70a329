// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFileRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}

	writer, err := NewRunWriter(buf)
	require.NoError(t, err)

	header := &RunHeader{
		Run:       "test",
		Detectors: []string{"H1", "L1"},
		BankFile:  "bank.txt",
		GpsStart:  1e9,
	}
	require.NoError(t, writer.PushHeader(header))

	for i := 0; i < 3; i++ {
		block := NewBlock()
		block.Run = "test"
		block.Seq = uint64(i)
		block.GpsStart = 1e9 + float64(i)*8
		block.GpsEnd = 1e9 + float64(i+1)*8
		block.Results["H1"] = triggersOf(block.GpsStart + 1)
		coinc := NewTriggerSet()
		coinc.AppendRow(map[string]float64{
			ColStat: 9 + float64(i),
			ColIfar: 0.5,
		})
		block.Coincs = []*TriggerSet{coinc}
		require.NoError(t, writer.Push(block))
	}
	require.NoError(t, writer.Close())

	reader, err := NewRunReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer reader.Close()

	var n int
	for block := reader.Next(); block != nil; block = reader.Next() {
		assert.Equal(t, uint64(n), block.Seq)
		assert.Equal(t, "test", block.Run)
		require.Len(t, block.Coincs, 1)
		assert.Equal(t, 9+float64(n), block.Coincs[0].Col(ColStat)[0])
		assert.Equal(t, 1, block.Results["H1"].Len())
		n++
	}
	require.NoError(t, reader.Err)
	assert.Equal(t, 3, n)

	require.NotNil(t, reader.Header())
	assert.Equal(t, header.Run, reader.Header().Run)
	assert.Equal(t, header.Detectors, reader.Header().Detectors)
}

func TestScanBlocksDeliversAllBlocks(t *testing.T) {
	buf := &bytes.Buffer{}
	writer, err := NewRunWriter(buf)
	require.NoError(t, err)
	require.NoError(t, writer.PushHeader(&RunHeader{Run: "scan"}))
	for i := 0; i < 5; i++ {
		block := NewBlock()
		block.Seq = uint64(i)
		require.NoError(t, writer.Push(block))
	}
	require.NoError(t, writer.Close())

	reader, err := NewRunReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer reader.Close()

	var seqs []uint64
	for block := range reader.ScanBlocks(2) {
		seqs = append(seqs, block.Seq)
	}
	require.NoError(t, reader.Err)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, seqs)
}
