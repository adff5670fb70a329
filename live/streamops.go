// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"fmt"

	"github.com/gravwave/gw-live/data"

	"github.com/go-redis/redis"
)

func BuildPlayer(
	namespace, stream string,
	client *redis.Client,
	addr string,
) data.OpArray {
	player := &data.Player{Speed: 1}

	ops := BuildSearchOps(namespace, stream, client, addr)
	if ops == nil {
		return nil
	}
	ops = append(
		data.OpArray{
			data.StreamOp{
				StreamProcessor: player.PlayRunStream,
			},
		},
		ops...,
	)
	return ops
}

// BuildSearchOps assembles the live pipeline for one inspiral analysis
// stream: merge pass, then the stream manager that feeds shows, answers
// commands, and records runs.
func BuildSearchOps(namespace, stream string, client *redis.Client, addr string) data.OpArray {
	streamManager := StreamManager{
		Namespace:       namespace,
		Name:            stream,
		Redis:           client,
		Addr:            addr,
		GenerateSources: SearchGenerateSources,
		CleanupRunData: []data.BlockProcessor{
			data.DropPsds,
		},
	}

	return data.OpArray{
		data.StreamOp{
			Description:     "Merge inspiral stream aggregate",
			StreamProcessor: data.MergeStream,
			MaxBlockBuf:     1,
		},
		data.StreamOp{
			StreamProcessor: streamManager.Manage,
			MaxBlockBuf:     1000,
		},
	}
}

// SearchGenerateSources extracts plottable sources from an analysis
// block: per-detector snr and trigger-rate series, psd snapshots, an
// snr vs chisq histogram, a coincident stat vs ifar scatter, and
// loudest-coinc ranking series.
func SearchGenerateSources(m *StreamManager, block *data.Block) {
	duration := block.GpsEnd - block.GpsStart

	for _, det := range block.Results.Detectors() {
		triggers := block.Results[det]

		endTimes := triggers.Col(data.ColEndTime)
		snrs := triggers.Col(data.ColSnr)
		chisqs := triggers.Col(data.ColChisq)

		snrInfo := m.GetSourceInfo(fmt.Sprintf("%v SNR", det))
		for i := range endTimes {
			m.HandleRoll(snrInfo, Normal, endTimes[i], snrs[i])
		}

		histInfo := m.GetSourceInfo(fmt.Sprintf("%v SNR vs Chisq", det))
		for i := range snrs {
			m.HandleHist(histInfo, Advanced, snrs[i], chisqs[i], 1)
		}

		if duration > 0 {
			rateInfo := m.GetSourceInfo(fmt.Sprintf("%v Trigger Rate", det))
			m.HandleRoll(rateInfo, Normal, block.GpsEnd, float64(triggers.Len())/duration)
		}
	}

	for det, psd := range block.Psds {
		psdInfo := m.GetSourceInfo(fmt.Sprintf("%v PSD", det))
		m.HandleArray(psdInfo, Advanced, psd)
	}

	if len(block.Coincs) > 0 && block.Coincs[0].Valid() {
		full := block.Coincs[0]

		if duration > 0 {
			coincRateInfo := m.GetSourceInfo("Coinc Rate")
			m.HandleRoll(coincRateInfo, Normal, block.GpsEnd, float64(full.Len())/duration)
		}

		scatterInfo := m.GetSourceInfo("Coinc Stat vs IFAR")
		stats := full.Col(data.ColStat)
		ifars := full.Col(data.ColIfar)
		for i := range stats {
			m.HandleScatter(scatterInfo, Advanced, stats[i], ifars[i])
		}

		if block.LoudestIndex >= 0 && block.LoudestIndex < full.Len() {
			statInfo := m.GetSourceInfo("Loudest Stat")
			m.HandleRoll(statInfo, Normal, block.GpsEnd, full.Col(data.ColStat)[block.LoudestIndex])

			ifarInfo := m.GetSourceInfo("Loudest IFAR")
			m.HandleRoll(ifarInfo, Normal, block.GpsEnd, full.Col(data.ColIfar)[block.LoudestIndex])
		}
	}
}
