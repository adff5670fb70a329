// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package shows renders live frames of search data products: rolling
// time series, trigger scatters, PSD projections, and 2D histograms.
package shows

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gravwave/gw-live/live/message"
	gwplot "github.com/gravwave/gw-live/plot"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgsvg"
)

type Show interface {
	Frame() (*message.Msg, uint64)
	UpdateFrame()
	UpdateFrameCount()
	AddSample(interface{})
}

// FrameClock owns the rendered frame a show publishes and throttles how
// often a new one is produced: AddSample triggers a render only after the
// previous frame has aged past FramePeriod.
type FrameClock struct {
	FramePeriod time.Duration

	mu           sync.RWMutex
	frame        *message.Msg
	frameCount   uint64
	frameExpired bool
}

func (c *FrameClock) Frame() (*message.Msg, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frame, c.frameCount
}

func (c *FrameClock) UpdateFrameCount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameCount++
}

// expired consumes the expiry flag; the caller renders when it reports true.
func (c *FrameClock) expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.frameExpired {
		return false
	}
	c.frameExpired = false
	return true
}

// publish installs a rendered frame and schedules the next expiry.
func (c *FrameClock) publish(frame *message.Msg) {
	c.mu.Lock()
	c.frame = frame
	c.frameCount++
	c.mu.Unlock()

	go func() {
		time.Sleep(c.FramePeriod)
		c.mu.Lock()
		c.frameExpired = true
		c.mu.Unlock()
	}()
}

// renderSVG rasterizes a plot at the frame size the web client lays out for.
func renderSVG(p *plot.Plot) []byte {
	svg := vgsvg.New(4*vg.Inch, 2.5*vg.Inch)
	p.Draw(draw.New(svg))
	buf := &bytes.Buffer{}
	svg.WriteTo(buf)
	return buf.Bytes()
}

// Command parameter helpers shared by the shows' "set params" handlers.
// Unparseable values leave the setting untouched.

func setFloatParam(dst *float64, value string) {
	if v, err := strconv.ParseFloat(value, 64); err == nil {
		*dst = v
	}
}

func setCountParam(dst *int, value string) {
	if v, err := strconv.ParseInt(value, 10, 64); err == nil && v >= 0 {
		*dst = int(v)
	}
}

func paramOn(value string) bool {
	return strings.ToLower(value) != "false"
}

// setLogScale switches an axis between linear and floored log10, the scale
// used for IFAR and strain-PSD magnitudes.
func setLogScale(axis *plot.Axis, on bool, floor float64) {
	if !on {
		axis.Tick.Marker = plot.DefaultTicks{}
		axis.Scale = plot.LinearScale{}
		return
	}
	axis.Tick.Marker = gwplot.LogTicks{Floor: floor}
	axis.Scale = &gwplot.FuncScale{Func: gwplot.Log10Floor(floor)}
}

func logScaleOn(axis *plot.Axis) bool {
	_, linear := axis.Scale.(plot.LinearScale)
	return !linear
}
