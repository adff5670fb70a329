// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gravwave/gw-live/bank"
	"github.com/gravwave/gw-live/data"
	"github.com/gravwave/gw-live/search"

	"gonum.org/v1/gonum/floats"
)

var (
	outFile   = flag.String("o", "", "output run file; stdout when empty")
	bankFile  = flag.String("bank", "", "template bank file; a synthetic bank is generated when empty")
	detectors = flag.String("detectors", "H1,L1", "comma-separated detector labels")
	blocks    = flag.Int("blocks", 100, "number of analysis blocks to generate")
	cores     = flag.Int("t", 2, "number of simulated filter cores")
	rate      = flag.Float64("rate", 2, "background trigger rate per core per second")
	stride    = flag.Float64("block-len", 8, "analysis block length in seconds")
	removals  = flag.Int("removals", 2, "hierarchical removal stages per block")
	seed      = flag.Uint64("seed", 0, "rng seed")
	withPsds  = flag.Bool("psd", true, "store PSD arrays in the run file")
)

func printUsage() {
	fmt.Fprintf(os.Stderr,
		`Usage: `+os.Args[0]+` [options]

Generates a simulated run file of Poisson background triggers

options:
`,
	)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() != 0 {
		printUsage()
		log.Fatal("invalid arguments")
	}

	dets := strings.Split(*detectors, ",")
	for i := range dets {
		dets[i] = strings.TrimSpace(dets[i])
	}

	bk := makeBank()

	sim := &search.Sim{
		Detectors: dets,
		StartGps:  1e9,
		Stride:    *stride,
		Blocks:    *blocks,
		Rate:      *rate,
		Removals:  *removals,
		Seed:      *seed,
	}

	simCores := make([]search.FilterCore, *cores)
	for i, part := range bk.Partition(*cores) {
		simCores[i] = sim.NewCore(part)
	}
	buffer := sim.Buffer()
	background := sim.Background()

	out := os.Stdout
	if *outFile != "" {
		var err error
		out, err = os.Create(*outFile)
		if err != nil {
			log.Fatal(err)
		}
		defer out.Close()
	}
	writer, err := data.NewRunWriter(out)
	if err != nil {
		log.Fatal(err)
	}
	defer writer.Close()

	header := &data.RunHeader{
		Run:       "sim",
		Detectors: dets,
		BankFile:  bk.File,
		GpsStart:  sim.StartGps,
	}
	if err := writer.PushHeader(header); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	var seq uint64
	for {
		seg, ready, ok := buffer.Advance(ctx)
		if !ok {
			break
		}
		if !ready {
			continue
		}
		seg.Seq = seq
		seq++

		results := make([]data.ResultSet, len(simCores))
		for i, core := range simCores {
			results[i] = core.Filter(seg)
		}
		merged := data.Merge(results)
		coincs, _ := background.Update(seg, merged)

		block := data.NewBlock()
		block.Run = "sim"
		block.Seq = seg.Seq
		block.GpsStart = seg.GpsStart
		block.GpsEnd = seg.GpsEnd
		block.Results = merged
		block.Coincs = coincs
		if *withPsds {
			block.Psds = buffer.Psds()
		}
		if len(coincs) > 0 {
			if stat := coincs[0].Col(data.ColStat); len(stat) > 0 {
				block.LoudestIndex = floats.MaxIdx(stat)
			}
		}

		if err := writer.Push(block); err != nil {
			log.Fatal(err)
		}
	}

	log.Printf("wrote %v blocks", seq)
}

func makeBank() *bank.Bank {
	if *bankFile != "" {
		bk, err := bank.Load(*bankFile)
		if err != nil {
			log.Fatal(err)
		}
		return bk
	}

	bk := &bank.Bank{File: "synthetic"}
	for i := 0; i < 100; i++ {
		bk.Templates = append(bk.Templates, &bank.Template{
			Id:    int64(i),
			Mass1: 1.2 + 0.35*float64(i),
			Mass2: 1.1 + 0.2*float64(i%17),
		})
	}
	return bk
}
