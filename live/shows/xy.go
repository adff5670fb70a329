// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package shows

import (
	"image/color"
	"math"
	"strconv"
	"sync"

	"github.com/gravwave/gw-live/live/message"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg/draw"
)

// XYSample is one trigger point, e.g. (ranking stat, ifar) for a
// coincident trigger.
type XYSample struct {
	X, Y     float64
	LineName string
}

// XY scatters recent trigger points. Each mapped source gets its own glyph
// set, trimmed to the NSample most recent points, so a burst of loud
// triggers stands out against the steady background population.
type XY struct {
	DisableAutorange bool
	NSample          int

	scatters map[string]*plotter.Scatter

	FrameClock
	sync.Mutex
	plot.Plot
}

func (s *XY) Execute(cmd *message.Cmd) error {
	s.Lock()
	defer s.Unlock()

	switch cmd.Command {
	case "set params":
		for param, value := range cmd.Metadata {
			switch param {
			case "autorange":
				s.DisableAutorange = !paramOn(value)
			case "min y":
				setFloatParam(&s.Y.Min, value)
			case "max y":
				setFloatParam(&s.Y.Max, value)
			case "min x":
				setFloatParam(&s.X.Min, value)
			case "max x":
				setFloatParam(&s.X.Max, value)
			case "logscale":
				// IFAR spans decades; floor well below one per
				// observation time.
				setLogScale(&s.Y, paramOn(value), 1e-4)
			case "nsample":
				setCountParam(&s.NSample, value)
			}
		}
	}

	return nil
}

func (s *XY) AddSample(vi interface{}) {
	v, ok := vi.(*XYSample)
	if !ok {
		return
	}

	s.Lock()

	if s.NSample == 0 {
		s.NSample = 500
	}
	if s.scatters == nil {
		s.scatters = make(map[string]*plotter.Scatter)
	}

	scatter := s.scatters[v.LineName]
	if scatter == nil {
		scatter, _ = plotter.NewScatter(make(plotter.XYs, 0))
		scatter.GlyphStyle.Shape = draw.PlusGlyph{}
		scatter.GlyphStyle.Radius = 1
		scatter.GlyphStyle.Color = plotutil.Color(len(s.scatters))
		s.scatters[v.LineName] = scatter
		s.Add(scatter)
		s.Legend.Add(v.LineName, scatter)
	}

	scatter.XYs = append(scatter.XYs, plotter.XY{X: v.X, Y: v.Y})
	if len(scatter.XYs) > s.NSample {
		scatter.XYs = scatter.XYs[len(scatter.XYs)-s.NSample:]
	}

	s.Unlock()

	if s.expired() {
		go s.UpdateFrame()
	}
}

func (s *XY) UpdateFrame() {
	s.Lock()

	if !s.DisableAutorange && len(s.scatters) > 0 {
		s.X.Min = math.Inf(+1)
		s.X.Max = math.Inf(-1)
		s.Y.Min = math.Inf(+1)
		s.Y.Max = math.Inf(-1)
		for _, scatter := range s.scatters {
			xmin, xmax, ymin, ymax := scatter.DataRange()
			s.X.Min = math.Min(s.X.Min, xmin)
			s.X.Max = math.Max(s.X.Max, xmax)
			s.Y.Min = math.Min(s.Y.Min, ymin)
			s.Y.Max = math.Max(s.Y.Max, ymax)
		}
	}

	frame := &message.Msg{
		Metadata: make(map[string]string),
		Payload:  renderSVG(&s.Plot),
	}
	frame.Metadata["show type"] = "XY"
	frame.Metadata["autorange"] = strconv.FormatBool(!s.DisableAutorange)
	frame.Metadata["min y"] = strconv.FormatFloat(s.Y.Min, 'g', 4, 64)
	frame.Metadata["max y"] = strconv.FormatFloat(s.Y.Max, 'g', 4, 64)
	frame.Metadata["min x"] = strconv.FormatFloat(s.X.Min, 'g', 4, 64)
	frame.Metadata["max x"] = strconv.FormatFloat(s.X.Max, 'g', 4, 64)
	frame.Metadata["nsample"] = strconv.FormatInt(int64(s.NSample), 10)
	frame.Metadata["logscale"] = strconv.FormatBool(logScaleOn(&s.Y))

	s.Unlock()
	s.publish(frame)
}

func (s *XY) InitPlot() {
	s.Lock()
	defer s.Unlock()

	donor, _ := plot.New()
	s.BackgroundColor = color.Transparent
	s.X = donor.X
	s.Y = donor.Y
	s.Legend = donor.Legend
	s.Title = donor.Title
}
