// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package search

import (
	"math/rand"
	"testing"
	"time"

	"github.com/gravwave/gw-live/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowCore tags its single output trigger with its rank and sleeps a random
// amount, so misordered gathers would surface.
type slowCore struct {
	rank float64
}

func (c slowCore) Filter(seg Segment) data.ResultSet {
	time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	set := data.NewTriggerSet()
	set.AppendRow(map[string]float64{
		data.ColEndTime: seg.GpsStart,
		data.ColSnr:     c.rank,
	})
	return data.ResultSet{"H1": set}
}

func TestWorkerPoolGathersInWorkerOrder(t *testing.T) {
	cores := []FilterCore{slowCore{0}, slowCore{1}, slowCore{2}, slowCore{3}}
	pool := newWorkerPool(cores, false)
	defer pool.close()

	for iter := 0; iter < 20; iter++ {
		pool.dispatch(Segment{GpsStart: float64(iter)})
		gathered := pool.gather()
		pool.release()

		require.Len(t, gathered, 4)
		for i, result := range gathered {
			snr := result["H1"].Col(data.ColSnr)
			require.Len(t, snr, 1)
			assert.Equal(t, float64(i), snr[0])
		}
	}
}

func TestWorkerPoolSyncBarrier(t *testing.T) {
	cores := []FilterCore{slowCore{0}, slowCore{1}}
	pool := newWorkerPool(cores, true)
	defer pool.close()

	for iter := 0; iter < 5; iter++ {
		pool.dispatch(Segment{GpsStart: float64(iter)})
		gathered := pool.gather()
		pool.release()
		require.Len(t, gathered, 2)
	}
}
