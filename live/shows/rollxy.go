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
	gwplot "github.com/gravwave/gw-live/plot"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

type smoothLine struct {
	smoother func(float64) float64
	i        int

	plotter.Line
}

// RollXYSample is one time-series point, e.g. (gps time, snr) for a
// detector line or (gps time, ifar) for the loudest-coinc line.
type RollXYSample struct {
	X, Y     float64
	LineName string
}

type RollXY struct {
	Alpha            float64
	DisableAutorange bool
	Downsample       int
	DrawMagnitude    bool
	NSample          int

	lines map[string]*smoothLine

	FrameClock
	sync.Mutex
	plot.Plot
}

func (s *RollXY) Execute(cmd *message.Cmd) error {
	s.Lock()
	defer s.Unlock()

	switch cmd.Command {
	case "set params":
		for param, value := range cmd.Metadata {
			switch param {
			case "autorange":
				s.DisableAutorange = !paramOn(value)
			case "magnitude":
				s.DrawMagnitude = paramOn(value)
			case "min":
				setFloatParam(&s.Y.Min, value)
			case "max":
				setFloatParam(&s.Y.Max, value)
			case "logscale":
				setLogScale(&s.Y, paramOn(value), 1e-15)
			case "alpha":
				alpha, err := strconv.ParseFloat(value, 64)
				if err == nil && alpha > 0 && alpha <= 1 {
					s.Alpha = alpha
					for _, line := range s.lines {
						if len(line.XYs) > 0 {
							line.smoother = gwplot.MakeSmoother(alpha, line.XYs[len(line.XYs)-1].Y)
						} else {
							line.smoother = gwplot.MakeSmoother(alpha, 0)
						}
					}
				}
			case "nsample":
				setCountParam(&s.NSample, value)
			case "downsample":
				setCountParam(&s.Downsample, value)
			}
		}
	}

	return nil
}

func (s *RollXY) AddSample(vi interface{}) {
	v, ok := vi.(*RollXYSample)
	if !ok {
		return
	}

	s.Lock()

	if s.NSample == 0 {
		s.NSample = 500
	}
	if s.Downsample == 0 {
		s.Downsample = 1
	}
	if s.Alpha == 0 {
		s.Alpha = 1
	}

	if s.lines == nil {
		s.lines = make(map[string]*smoothLine)
	}

	line := s.lines[v.LineName]
	if line == nil {
		line = &smoothLine{
			smoother: gwplot.MakeSmoother(s.Alpha, 0),
		}
		line.LineStyle = plotter.DefaultLineStyle
		line.Color = plotutil.Color(len(s.lines))
		s.lines[v.LineName] = line
		s.Add(line)
		s.Legend.Add(v.LineName, line)
	}
	line.i++

	if s.DrawMagnitude {
		v.Y = math.Abs(v.Y)
	}
	ySmooth := line.smoother(v.Y)

	if line.i%s.Downsample == 0 {
		// A backward jump in gps time means the run restarted.
		if len(line.XYs) > 0 && v.X < line.XYs[len(line.XYs)-1].X {
			line.XYs = nil
			line.smoother = gwplot.MakeSmoother(s.Alpha, 0)
			ySmooth = line.smoother(v.Y)
		}
		line.XYs = append(line.XYs, plotter.XY{X: v.X, Y: ySmooth})
		for len(line.XYs) > s.NSample {
			line.XYs = line.XYs[1:]
		}
	}

	s.Unlock()

	if s.expired() {
		go s.UpdateFrame()
	}
}

func (s *RollXY) UpdateFrame() {
	s.Lock()

	s.X.Min = math.Inf(+1)
	s.X.Max = math.Inf(-1)
	if !s.DisableAutorange {
		s.Y.Min = math.Inf(+1)
		s.Y.Max = math.Inf(-1)
	}
	for _, line := range s.lines {
		xmin, xmax, ymin, ymax := line.DataRange()
		s.X.Min = math.Min(s.X.Min, xmin)
		s.X.Max = math.Max(s.X.Max, xmax)
		if !s.DisableAutorange {
			s.Y.Min = math.Min(s.Y.Min, ymin)
			s.Y.Max = math.Max(s.Y.Max, ymax)
		}
	}

	frame := &message.Msg{
		Metadata: make(map[string]string),
		Payload:  renderSVG(&s.Plot),
	}
	frame.Metadata["show type"] = "Roll XY"
	frame.Metadata["alpha"] = strconv.FormatFloat(s.Alpha, 'g', 8, 64)
	frame.Metadata["nsample"] = strconv.FormatInt(int64(s.NSample), 10)
	frame.Metadata["downsample"] = strconv.FormatInt(int64(s.Downsample), 10)
	frame.Metadata["autorange"] = strconv.FormatBool(!s.DisableAutorange)
	frame.Metadata["magnitude"] = strconv.FormatBool(s.DrawMagnitude)
	frame.Metadata["min"] = strconv.FormatFloat(s.Y.Min, 'g', 4, 64)
	frame.Metadata["max"] = strconv.FormatFloat(s.Y.Max, 'g', 4, 64)
	frame.Metadata["logscale"] = strconv.FormatBool(logScaleOn(&s.Y))

	s.Unlock()
	s.publish(frame)
}

func (s *RollXY) InitPlot() {
	s.Lock()
	defer s.Unlock()

	donor, _ := plot.New()
	s.BackgroundColor = color.Transparent
	s.X = donor.X
	s.Y = donor.Y
	s.Legend = donor.Legend
	s.Title = donor.Title

	s.X.Tick.Marker = gwplot.RollTicks{}
}
