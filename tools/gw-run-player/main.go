// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package main

import (
	"github.com/gravwave/gw-live/data"
)

var speed = data.FlagSet.Float64("s", 1.0, "relative speed of playback")

func main() {
	player := &data.Player{}
	playOp := data.OpArray{
		data.StreamOp{
			Description:     "Repeats data using gps timestamps to \"play\" analysis blocks at a realistic rate from a recording",
			StreamProcessor: player.PlayRunStream,
		},
	}
	playOp.RunCmdFlagParse()
	player.Speed = *speed
	playOp.RunCmd()
}
