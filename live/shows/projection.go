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
)

// strainFloor clamps the log scale below any plausible PSD magnitude.
const strainFloor = 1e-48

type linePoints struct {
	plotter.XYs

	line   *plotter.Line
	points *plotter.Scatter
}

// ProjectionSample is one array snapshot, e.g. a detector PSD for the
// latest analysis segment.
type ProjectionSample struct {
	Y        []float64
	LineName string
}

// Projection draws array snapshots as lines, blending successive arrays
// with an exponential moving average. DeltaF, when set, spaces the bins in
// frequency rather than by index, which is how PSDs are mapped onto it.
type Projection struct {
	Alpha            float64
	DeltaF           float64
	DisableAutorange bool
	DrawMagnitude    bool

	linepoints map[string]*linePoints
	invAlpha   float64

	FrameClock
	sync.Mutex
	plot.Plot
}

func (s *Projection) Execute(cmd *message.Cmd) error {
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
			case "df":
				df, err := strconv.ParseFloat(value, 64)
				if err == nil && df > 0 {
					s.DeltaF = df
					s.rebinLines()
				}
			case "alpha":
				alpha, err := strconv.ParseFloat(value, 64)
				if err == nil && alpha > 0 && alpha <= 1 {
					s.Alpha = alpha
					s.invAlpha = 1.0 - alpha
				}
			case "logscale":
				setLogScale(&s.Y, paramOn(value), strainFloor)
			}
		}
	}

	return nil
}

// binX maps a bin index to its x coordinate.
func (s *Projection) binX(i int) float64 {
	if s.DeltaF > 0 {
		return float64(i) * s.DeltaF
	}
	return float64(i)
}

func (s *Projection) rebinLines() {
	for _, line := range s.linepoints {
		for i := range line.XYs {
			line.XYs[i].X = s.binX(i)
		}
	}
}

func (s *Projection) AddSample(vi interface{}) {
	v, ok := vi.(*ProjectionSample)
	if !ok {
		return
	}

	s.Lock()

	if s.Alpha <= 0 {
		s.Alpha = 1
		s.invAlpha = 0
	}

	if s.linepoints == nil {
		s.linepoints = make(map[string]*linePoints)
	}

	line := s.linepoints[v.LineName]
	if line == nil {
		line = s.newLine(v.LineName, len(v.Y))
	}

	if len(line.XYs) != len(v.Y) {
		line.XYs = make(plotter.XYs, len(v.Y))
		for i := range line.XYs {
			line.XYs[i].X = s.binX(i)
		}
		line.line.XYs = line.XYs
		line.points.XYs = line.XYs
	}

	for i, thisY := range v.Y {
		if s.DrawMagnitude {
			thisY = math.Abs(thisY)
		}
		line.XYs[i].Y *= s.invAlpha
		line.XYs[i].Y += s.Alpha * thisY
	}

	s.Unlock()

	if s.expired() {
		go s.UpdateFrame()
	}
}

func (s *Projection) newLine(name string, nbins int) *linePoints {
	line := &linePoints{
		XYs:    make(plotter.XYs, nbins),
		line:   &plotter.Line{},
		points: &plotter.Scatter{},
	}
	for i := range line.XYs {
		line.XYs[i].X = s.binX(i)
	}
	line.line.XYs = line.XYs
	line.line.LineStyle = plotter.DefaultLineStyle
	line.line.Dashes = plotutil.Dashes(len(s.linepoints))
	line.line.Color = plotutil.Color(len(s.linepoints))
	line.points.XYs = line.XYs
	line.points.GlyphStyle = plotter.DefaultGlyphStyle
	line.points.Shape = plotutil.Shape(len(s.linepoints))
	line.points.Color = plotutil.Color(len(s.linepoints))
	s.linepoints[name] = line
	s.Add(line.line)
	s.Add(line.points)
	s.Legend.Add(name, line.line, line.points)
	return line
}

func (s *Projection) UpdateFrame() {
	s.Lock()

	if !s.DisableAutorange && len(s.linepoints) > 0 {
		s.X.Min = math.Inf(+1)
		s.X.Max = math.Inf(-1)
		s.Y.Min = math.Inf(+1)
		s.Y.Max = math.Inf(-1)
		for _, line := range s.linepoints {
			xmin, xmax, ymin, ymax := line.line.DataRange()
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
	frame.Metadata["show type"] = "Projection"
	frame.Metadata["alpha"] = strconv.FormatFloat(s.Alpha, 'g', 8, 64)
	frame.Metadata["autorange"] = strconv.FormatBool(!s.DisableAutorange)
	frame.Metadata["magnitude"] = strconv.FormatBool(s.DrawMagnitude)
	frame.Metadata["min"] = strconv.FormatFloat(s.Y.Min, 'g', 4, 64)
	frame.Metadata["max"] = strconv.FormatFloat(s.Y.Max, 'g', 4, 64)
	if s.DeltaF > 0 {
		frame.Metadata["df"] = strconv.FormatFloat(s.DeltaF, 'g', 8, 64)
	}
	frame.Metadata["logscale"] = strconv.FormatBool(logScaleOn(&s.Y))

	s.Unlock()
	s.publish(frame)
}

func (s *Projection) InitPlot() {
	s.Lock()
	defer s.Unlock()

	donor, _ := plot.New()
	s.BackgroundColor = color.Transparent
	s.X = donor.X
	s.Y = donor.Y
	s.Legend = donor.Legend
	s.Title = donor.Title

	// PSD magnitudes span many decades; start on the log scale.
	setLogScale(&s.Y, true, strainFloor)
}
