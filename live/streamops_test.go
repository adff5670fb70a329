// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"testing"

	"github.com/gravwave/gw-live/data"
	"github.com/gravwave/gw-live/live/shows"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) *StreamManager {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return &StreamManager{
		Namespace:  "test",
		Name:       "run1",
		Redis:      client,
		Addr:       mr.Addr(),
		sourceInfo: make(map[string]*SourceInfo),
		showInfo:   make(map[uuid.UUID]ShowInfo),
	}
}

func coincBlock() *data.Block {
	full := data.NewTriggerSet()
	full.AppendRow(map[string]float64{data.ColStat: 9, data.ColIfar: 2})
	full.AppendRow(map[string]float64{data.ColStat: 12, data.ColIfar: 40})

	block := data.NewBlock()
	block.GpsStart = 1e9
	block.GpsEnd = 1e9 + 8
	block.Coincs = []*data.TriggerSet{full}
	return block
}

func TestSearchGenerateSourcesFeedsCoincScatter(t *testing.T) {
	m := testManager(t)

	id := uuid.New()
	samples := make(chan interface{}, 100)
	m.showInfo[id] = ShowInfo{Show: &shows.XY{}, SampleChannel: samples}
	info := m.GetSourceInfo("Coinc Stat vs IFAR")
	info.ShowIds = append(info.ShowIds, id)

	SearchGenerateSources(m, coincBlock())

	assert.Equal(t, []ShowType{XY}, info.CompatShows)
	require.Len(t, samples, 2)

	sample := (<-samples).(*shows.XYSample)
	assert.Equal(t, 9.0, sample.X)
	assert.Equal(t, 2.0, sample.Y)
	sample = (<-samples).(*shows.XYSample)
	assert.Equal(t, 12.0, sample.X)
	assert.Equal(t, 40.0, sample.Y)
}

func TestSearchGenerateSourcesSkipsInvalidCoincs(t *testing.T) {
	m := testManager(t)

	block := coincBlock()
	block.Coincs[0].Columns[data.ColIfar] = block.Coincs[0].Columns[data.ColIfar][:1]

	SearchGenerateSources(m, block)
	assert.Nil(t, m.sourceInfo["Coinc Stat vs IFAR"])
}
