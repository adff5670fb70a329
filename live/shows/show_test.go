// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package shows

import (
	"testing"
	"time"

	"github.com/gravwave/gw-live/live/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXYScatterPerSourceTrimming(t *testing.T) {
	s := &XY{NSample: 3, FrameClock: FrameClock{FramePeriod: time.Hour}}
	s.InitPlot()

	for i := 0; i < 5; i++ {
		s.AddSample(&XYSample{X: float64(i), Y: float64(10 + i), LineName: "H1L1"})
	}
	s.AddSample(&XYSample{X: 1, Y: 2, LineName: "H1V1"})

	require.Len(t, s.scatters, 2)
	require.Len(t, s.scatters["H1L1"].XYs, 3)
	assert.Equal(t, 2.0, s.scatters["H1L1"].XYs[0].X)
	assert.Len(t, s.scatters["H1V1"].XYs, 1)
}

func TestXYFrameAutoranges(t *testing.T) {
	s := &XY{FrameClock: FrameClock{FramePeriod: time.Hour}}
	s.InitPlot()
	s.AddSample(&XYSample{X: 8, Y: 0.01, LineName: "H1L1"})
	s.AddSample(&XYSample{X: 12, Y: 40, LineName: "H1L1"})

	s.UpdateFrame()
	frame, count := s.Frame()
	require.NotNil(t, frame)
	assert.NotZero(t, count)
	assert.Equal(t, "XY", frame.Metadata["show type"])
	assert.Equal(t, "8", frame.Metadata["min x"])
	assert.Equal(t, "12", frame.Metadata["max x"])
	assert.Equal(t, "0.01", frame.Metadata["min y"])
	assert.Equal(t, "40", frame.Metadata["max y"])
	assert.NotEmpty(t, frame.Payload)
}

func TestHist2DRebinReplacesHistogram(t *testing.T) {
	s := &Hist2D{FrameClock: FrameClock{FramePeriod: time.Hour}}
	s.InitPlot()
	s.AddSample(&Hist2DSample{X: 8, Y: 1, Weight: 1})

	cmd := &message.Cmd{
		Command: "set params",
		Metadata: map[string]string{
			"nbins x": "20",
			"max x":   "40",
		},
	}
	require.NoError(t, s.Execute(cmd))

	b := s.hb.Binning
	assert.Equal(t, 20, b.Nx)
	assert.Equal(t, 40.0, b.XRange.Max)
	// Untouched edges survive the rebuild.
	assert.Equal(t, 4.0, b.XRange.Min)
	assert.Equal(t, 50, b.Ny)
}

func TestHist2DLabelsInFrame(t *testing.T) {
	s := &Hist2D{FrameClock: FrameClock{FramePeriod: time.Hour}}
	s.InitPlot()

	s.UpdateFrame()
	frame, _ := s.Frame()
	require.NotNil(t, frame)
	assert.Equal(t, "snr", frame.Metadata["x label"])
	assert.Equal(t, "reduced chisq", frame.Metadata["y label"])
}
