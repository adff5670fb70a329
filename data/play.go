// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"math"
	"time"
)

type Player struct {
	Speed float64
}

// PlayRunStream forwards blocks paced by their GPS spans, emulating the
// cadence of the original analysis.
func (p *Player) PlayRunStream(input <-chan *Block, output chan<- *Block) {
	if p.Speed == 0.0 {
		p.Speed = 1.0
	}
	durationScale := 1.0 / p.Speed

	var start time.Time
	initGps := math.Inf(1)
	lastGps := math.Inf(1)

	for block := range input {
		var gpsDiff float64
		if block.GpsStart < lastGps {
			start = time.Now()
			initGps = block.GpsStart
		} else {
			gpsDiff = durationScale * (block.GpsStart - initGps)
		}
		lastGps = block.GpsStart

		relTime := time.Duration(gpsDiff * float64(time.Second))
		time.Sleep(time.Until(start.Add(relTime)))

		output <- block
	}
}
