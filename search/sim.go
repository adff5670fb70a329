// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package search

import (
	"context"
	"math"
	"sort"

	"github.com/gravwave/gw-live/bank"
	"github.com/gravwave/gw-live/data"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Sim is a stand-in detection engine that draws Poisson background triggers.
// It performs no filtering or DSP of any kind; it exists to exercise the
// driver, monitor, player, and report without a detector network.
type Sim struct {
	Detectors []string
	StartGps  float64
	Stride    float64 // seconds per analysis block
	Blocks    int     // stream length in blocks; 0 means unbounded
	Rate      float64 // background trigger rate per core per second
	DropFrac  float64 // chance a core reports a detector invalid for a block
	SkipFrac  float64 // chance a stride lacks enough buffered data
	Removals  int     // hierarchical removal stages synthesized per block
	PsdBins   int
	Seed      uint64

	nCores int
}

func (s *Sim) defaults() {
	if len(s.Detectors) == 0 {
		s.Detectors = []string{"H1", "L1"}
	}
	if s.Stride == 0 {
		s.Stride = 8
	}
	if s.Rate == 0 {
		s.Rate = 2
	}
	if s.PsdBins == 0 {
		s.PsdBins = 64
	}
}

func (s *Sim) Buffer() StrainBuffer {
	s.defaults()
	return &simBuffer{
		sim: s,
		rng: rand.New(rand.NewSource(s.Seed + 1)),
	}
}

func (s *Sim) NewCore(partition []*bank.Template) FilterCore {
	s.defaults()
	s.nCores++
	return &simCore{
		sim:       s,
		partition: partition,
		rng:       rand.New(rand.NewSource(s.Seed + 1000 + uint64(s.nCores))),
		triggerId: int64(s.nCores) << 32,
	}
}

func (s *Sim) Background() Background {
	s.defaults()
	return &simBackground{
		sim: s,
		rng: rand.New(rand.NewSource(s.Seed + 2)),
	}
}

type simBuffer struct {
	sim  *Sim
	rng  *rand.Rand
	emit int
}

func (b *simBuffer) Advance(ctx context.Context) (Segment, bool, bool) {
	s := b.sim
	if s.Blocks > 0 && b.emit >= s.Blocks {
		return Segment{}, false, false
	}

	seg := Segment{
		GpsStart: s.StartGps + float64(b.emit)*s.Stride,
		GpsEnd:   s.StartGps + float64(b.emit+1)*s.Stride,
	}
	b.emit++

	select {
	case <-ctx.Done():
		return Segment{}, false, false
	default:
	}

	if s.SkipFrac > 0 && b.rng.Float64() < s.SkipFrac {
		return seg, false, true
	}
	return seg, true, true
}

func (b *simBuffer) Psds() map[string][]float64 {
	s := b.sim
	psds := make(map[string][]float64, len(s.Detectors))
	for _, det := range s.Detectors {
		psd := make([]float64, s.PsdBins)
		for i := range psd {
			f := float64(i + 1)
			psd[i] = 1e-46/(f*f*f) + 1e-47 + 1e-48*b.rng.Float64()
		}
		psds[det] = psd
	}
	return psds
}

type simCore struct {
	sim       *Sim
	partition []*bank.Template
	rng       *rand.Rand
	triggerId int64
}

func (c *simCore) Filter(seg Segment) data.ResultSet {
	s := c.sim

	poisson := distuv.Poisson{Lambda: s.Rate * s.Stride, Src: c.rng}
	tail := distuv.Exponential{Rate: 1, Src: c.rng}

	result := make(data.ResultSet, len(s.Detectors))
	for _, det := range s.Detectors {
		if s.DropFrac > 0 && c.rng.Float64() < s.DropFrac {
			result[det] = nil
			continue
		}

		set := data.NewTriggerSet()
		n := int(poisson.Rand())
		for i := 0; i < n; i++ {
			tmpl := c.partition[c.rng.Intn(len(c.partition))]
			c.triggerId++
			set.AppendRow(map[string]float64{
				data.ColEndTime:    seg.GpsStart + c.rng.Float64()*(seg.GpsEnd-seg.GpsStart),
				data.ColSnr:        4 + tail.Rand(),
				data.ColChisq:      0.5 + 0.5*tail.Rand(),
				data.ColTemplateId: float64(tmpl.Id),
				data.ColTriggerId:  float64(c.triggerId),
			})
		}
		result[det] = set
	}
	return result
}

type simBackground struct {
	sim       *Sim
	rng       *rand.Rand
	triggerId int64
}

// Update synthesizes a coincident dataset from the merged per-detector
// triggers: the loudest triggers of the two most sensitive detectors are
// paired in rank order and assigned a toy ranking statistic monotone in SNR.
func (bg *simBackground) Update(seg Segment, merged data.ResultSet) ([]*data.TriggerSet, []*data.Candidate) {
	dets := merged.Detectors()
	sort.Strings(dets)

	full := data.NewTriggerSet()
	var candidates []*data.Candidate

	if len(dets) > 0 {
		ranked := make(map[string][]int)
		for _, det := range dets {
			snr := merged[det].Col(data.ColSnr)
			order := make([]int, len(snr))
			for i := range order {
				order[i] = i
			}
			sort.Slice(order, func(i, j int) bool { return snr[order[i]] > snr[order[j]] })
			ranked[det] = order
		}

		n := len(ranked[dets[0]])
		for _, det := range dets[1:] {
			if len(ranked[det]) < n {
				n = len(ranked[det])
			}
		}

		for i := 0; i < n; i++ {
			var stat, t float64
			snrs := make(map[string]float64, len(dets))
			chisqs := make(map[string]float64, len(dets))
			for _, det := range dets {
				row := ranked[det][i]
				snr := merged[det].Col(data.ColSnr)[row]
				stat += snr * snr
				snrs[det] = snr
				chisqs[det] = merged[det].Col(data.ColChisq)[row]
				t = merged[det].Col(data.ColEndTime)[row]
			}
			stat = math.Sqrt(stat)

			ifar := math.Exp((stat - 8) / 2)
			ifarExc := ifar * (0.5 + 0.5*bg.rng.Float64())
			bg.triggerId++

			full.AppendRow(map[string]float64{
				data.ColEndTime:    t,
				data.ColStat:       stat,
				data.ColIfar:       ifar,
				data.ColIfarExc:    ifarExc,
				data.ColPvalue:     1 / (1 + ifar),
				data.ColPvalueExc:  1 / (1 + ifarExc),
				data.ColTemplateId: merged[dets[0]].Col(data.ColTemplateId)[ranked[dets[0]][i]],
				data.ColTriggerId:  float64(bg.triggerId),
			})

			if ifar > 1 {
				candidates = append(candidates, &data.Candidate{
					GpsTime:    t,
					Stat:       stat,
					Ifar:       ifar,
					Pvalue:     1 / (1 + ifar),
					TemplateId: int64(full.Col(data.ColTemplateId)[full.Len()-1]),
					TriggerId:  bg.triggerId,
					Snr:        snrs,
					Chisq:      chisqs,
				})
			}
		}
	}

	coincs := []*data.TriggerSet{full}
	for k := 0; k < bg.sim.Removals; k++ {
		coincs = append(coincs, removeLoudest(full, k+1))
	}
	return coincs, candidates
}

// removeLoudest rebuilds the dataset with the n loudest rows removed and the
// exclusive columns dropped, matching what a hierarchical removal stage of
// the engine reports.
func removeLoudest(set *data.TriggerSet, n int) *data.TriggerSet {
	stat := set.Col(data.ColStat)
	order := make([]int, len(stat))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return stat[order[i]] > stat[order[j]] })

	removed := make(map[int]bool, n)
	for i := 0; i < n && i < len(order); i++ {
		removed[order[i]] = true
	}

	out := data.NewTriggerSet()
	for name, col := range set.Columns {
		if name == data.ColIfarExc || name == data.ColPvalueExc {
			continue
		}
		kept := make([]float64, 0, len(col))
		for i, v := range col {
			if !removed[i] {
				kept = append(kept, v)
			}
		}
		out.Columns[name] = kept
	}
	return out
}
