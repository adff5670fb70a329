// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package shows

import (
	"bytes"
	"image/color"
	"image/png"
	"strconv"
	"sync"

	"github.com/gravwave/gw-live/live/message"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Hist2DSample is one weighted fill, e.g. (snr, reduced chisq, 1) for a
// single-detector trigger.
type Hist2DSample struct {
	X, Y   float64
	Weight float64
}

// Hist2D accumulates a 2D population histogram. Rebinning any edge resets
// the accumulated counts, since old fills cannot be redistributed.
type Hist2D struct {
	XLabel string
	YLabel string

	hb *hbook.H2D

	FrameClock
	sync.Mutex
}

func (s *Hist2D) Execute(cmd *message.Cmd) error {
	s.Lock()
	defer s.Unlock()

	switch cmd.Command {
	case "set params":
		b := s.hb.Binning
		nx, ny := b.Nx, b.Ny
		xmin, xmax := b.XRange.Min, b.XRange.Max
		ymin, ymax := b.YRange.Min, b.YRange.Max

		rebin := false
		for param, value := range cmd.Metadata {
			switch param {
			case "reset":
				rebin = true
			case "min x":
				setFloatParam(&xmin, value)
				rebin = true
			case "max x":
				setFloatParam(&xmax, value)
				rebin = true
			case "min y":
				setFloatParam(&ymin, value)
				rebin = true
			case "max y":
				setFloatParam(&ymax, value)
				rebin = true
			case "nbins x":
				setCountParam(&nx, value)
				rebin = true
			case "nbins y":
				setCountParam(&ny, value)
				rebin = true
			case "x label":
				s.XLabel = value
			case "y label":
				s.YLabel = value
			}
		}
		if rebin && nx > 0 && ny > 0 {
			s.hb = hbook.NewH2D(nx, xmin, xmax, ny, ymin, ymax)
		}
	}

	return nil
}

func (s *Hist2D) AddSample(vi interface{}) {
	v, ok := vi.(*Hist2DSample)
	if !ok {
		return
	}

	s.Lock()
	s.hb.Fill(v.X, v.Y, v.Weight)
	s.Unlock()

	if s.expired() {
		go s.UpdateFrame()
	}
}

func (s *Hist2D) UpdateFrame() {
	s.Lock()

	p, _ := plot.New()
	p.BackgroundColor = color.Transparent
	p.X.Label.Text = s.XLabel
	p.Y.Label.Text = s.YLabel
	hp := &hplot.Plot{
		Plot:  p,
		Style: hplot.DefaultStyle,
	}
	if s.hb != nil {
		colorMap := moreland.Kindlmann()
		h := hplot.NewH2D(s.hb, colorMap.Palette(1000))
		h.Infos.Style = hplot.HInfoMean | hplot.HInfoStdDev
		hp.Add(h)
		hp.Add(hplot.NewGrid())
	}

	img := vgimg.New(4*vg.Inch, 2.5*vg.Inch)
	p.Draw(draw.New(img))
	buf := &bytes.Buffer{}
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	encoder.Encode(buf, img.Image())

	frame := &message.Msg{
		Metadata: make(map[string]string),
		Payload:  buf.Bytes(),
	}
	frame.Metadata["show type"] = "Histogram 2D"
	frame.Metadata["is png"] = "true"
	frame.Metadata["reset"] = ""
	if s.hb != nil {
		b := s.hb.Binning
		frame.Metadata["nbins x"] = strconv.FormatInt(int64(b.Nx), 10)
		frame.Metadata["min x"] = strconv.FormatFloat(b.XRange.Min, 'g', 4, 64)
		frame.Metadata["max x"] = strconv.FormatFloat(b.XRange.Max, 'g', 4, 64)
		frame.Metadata["nbins y"] = strconv.FormatInt(int64(b.Ny), 10)
		frame.Metadata["min y"] = strconv.FormatFloat(b.YRange.Min, 'g', 4, 64)
		frame.Metadata["max y"] = strconv.FormatFloat(b.YRange.Max, 'g', 4, 64)
	}
	frame.Metadata["x label"] = s.XLabel
	frame.Metadata["y label"] = s.YLabel

	s.Unlock()
	s.publish(frame)
}

func (s *Hist2D) InitPlot() {
	s.Lock()
	defer s.Unlock()

	// Defaults sized for snr vs reduced chisq.
	s.hb = hbook.NewH2D(50, 4, 20, 50, 0, 5)
	if s.XLabel == "" {
		s.XLabel = "snr"
	}
	if s.YLabel == "" {
		s.YLabel = "reduced chisq"
	}
}
