// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/gravwave/gw-live/alert"
	"github.com/gravwave/gw-live/bank"
	"github.com/gravwave/gw-live/data"
	"github.com/gravwave/gw-live/search"

	"github.com/sevlyar/go-daemon"
	"golang.org/x/net/websocket"
)

var (
	bankFile  = flag.String("bank", "", "template bank file (required)")
	strainURL = flag.String("strain-url", "sim://", "strain source url; only the sim scheme ships in this repo")
	detectors = flag.String("detectors", "H1,L1", "comma-separated detector labels")

	channel   = flag.String("channel", "GWOSC-STRAIN", "strain channel name pattern")
	stateChan = flag.String("state-channel", "GWOSC-STATE", "state vector channel name pattern")
	dqChan    = flag.String("dq-channel", "GWOSC-DQMASK", "data quality channel name pattern")

	sampleRate  = flag.Int("sample-rate", 2048, "analysis sample rate in Hz")
	flow        = flag.Float64("flow", 20, "low frequency cutoff in Hz")
	chisqBins   = flag.Int("chisq-bins", 16, "number of chi-square veto bins")
	psdSegs     = flag.Int("psd-segments", 32, "segments per PSD estimate")
	psdStride   = flag.Float64("psd-stride", 4, "PSD segment stride in seconds")
	highpassFrq = flag.Float64("highpass", 15, "highpass corner frequency in Hz")
	highpassOrd = flag.Int("highpass-order", 8, "highpass filter order")
	gateThresh  = flag.Float64("autogate-threshold", 50, "strain sigma threshold for autogating; 0 disables")
	gatePad     = flag.Float64("autogate-pad", 0.25, "seconds zeroed around an autogated sample")
	stride      = flag.Float64("block-len", 8, "analysis block length in seconds")

	endTime = flag.String("end-time", "", "wall-clock end of the run, RFC3339; empty runs until the stream ends")
	workers = flag.Int("w", 2, "worker slots; the first slot coordinates and does not filter")
	sync    = flag.Bool("sync", false, "enforce a collective barrier every block for synchronized timing")

	outputURL  = flag.String("output-url", "file://results", "run output url (file:// or gs://)")
	creds      = flag.String("credentials", "", "service account credentials file for gs output")
	datePrefix = flag.Bool("date-prefix", false, "place block files under date-named subdirectories")
	storePsds  = flag.Bool("store-psd", false, "store PSD arrays in block files")
	storeLoud  = flag.Bool("store-loudest", true, "store the loudest-event index in block files")

	enableUploads = flag.Bool("enable-uploads", false, "submit candidates to the alert service")
	singleUploads = flag.Bool("single-uploads", false, "allow single-detector candidate submission")
	ifarThresh    = flag.Float64("ifar-threshold", 100, "minimum IFAR in years a candidate must exceed before upload")
	alertServer   = flag.String("alert-server", "", "alert service base url")
	production    = flag.Bool("production", false, "file alerts under the production group instead of the test group")

	simRate     = flag.Float64("sim-rate", 2, "simulated background trigger rate per core per second")
	simBlocks   = flag.Int("sim-blocks", 0, "simulated stream length in blocks; 0 is unbounded")
	simRemovals = flag.Int("sim-removals", 0, "simulated hierarchical removal stages per block")
	simSeed     = flag.Uint64("sim-seed", 0, "simulation rng seed")

	monitorURL = flag.String("monitor-url", "", "gw-live ingress url for live status blocks")
	runName    = flag.String("run", "", "run label; defaults to the bank file basename")
	daemonize  = flag.Bool("d", false, "daemonize the search")
	cpuProfile = flag.String("cpuprofile", "", "output file for cpu profiling")
)

func printUsage() {
	fmt.Fprintf(os.Stderr,
		`Usage: `+os.Args[0]+` [options]

Low-latency inspiral search driver

options:
`,
	)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() != 0 || *bankFile == "" {
		printUsage()
		log.Fatal("invalid arguments")
	}

	if *daemonize {
		ctxt := &daemon.Context{}
		d, err := ctxt.Reborn()
		if err != nil {
			log.Fatal("unable to daemonize search:", err)
		}
		if d != nil {
			return
		}
		log.Println("daemon started")
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal("could not create cpu profile file: ", err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	bk, err := bank.Load(*bankFile)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("loaded %v templates from %v", len(bk.Templates), *bankFile)

	dets := strings.Split(*detectors, ",")
	for i := range dets {
		dets[i] = strings.TrimSpace(dets[i])
	}

	run := *runName
	if run == "" {
		base := *bankFile
		if i := strings.LastIndexByte(base, '/'); i >= 0 {
			base = base[i+1:]
		}
		run = strings.TrimSuffix(base, ".txt")
	}

	var end time.Time
	if *endTime != "" {
		end, err = time.Parse(time.RFC3339, *endTime)
		if err != nil {
			log.Fatal("unable to parse end time: ", err)
		}
	}

	engine := makeEngine(dets)

	cfg := search.Config{
		Run:       run,
		Bank:      bk,
		Workers:   *workers,
		Sync:      *sync,
		EndTime:   end,
		Detectors: dets,

		SampleRate: float64(*sampleRate),
		Metadata:   conditioningMetadata(),

		OutputURL:    *outputURL,
		Credentials:  *creds,
		DatePrefix:   *datePrefix,
		StorePsds:    *storePsds,
		StoreLoudest: *storeLoud,

		EnableUploads:      *enableUploads,
		AllowSingleUploads: *singleUploads,
		IfarThreshold:      *ifarThresh,
	}

	driver := &search.Driver{
		Config:   cfg,
		Engine:   engine,
		Uploader: alert.NewClient(*alertServer, !*production),
	}

	var push chan *data.Block
	if *monitorURL != "" {
		push = make(chan *data.Block, 1000)
		go pushBlocks(cfg, push)
		driver.OnBlock = func(block *data.Block) {
			select {
			case push <- block:
			default:
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		<-c
		cancel()
	}()

	if err := driver.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal(err)
	}
	if push != nil {
		close(push)
	}

	log.Println("quitting nicely")
}

// conditioningMetadata records the channel selection and conditioning
// settings in the run header, so a results file documents how its strain
// was prepared.
func conditioningMetadata() map[string]string {
	return map[string]string{
		"channel":            *channel,
		"state channel":      *stateChan,
		"dq channel":         *dqChan,
		"flow":               strconv.FormatFloat(*flow, 'g', -1, 64),
		"chisq bins":         strconv.Itoa(*chisqBins),
		"psd segments":       strconv.Itoa(*psdSegs),
		"psd stride":         strconv.FormatFloat(*psdStride, 'g', -1, 64),
		"highpass":           strconv.FormatFloat(*highpassFrq, 'g', -1, 64),
		"highpass order":     strconv.Itoa(*highpassOrd),
		"autogate threshold": strconv.FormatFloat(*gateThresh, 'g', -1, 64),
		"autogate pad":       strconv.FormatFloat(*gatePad, 'g', -1, 64),
	}
}

func makeEngine(dets []string) search.Engine {
	thisUrl, err := url.Parse(*strainURL)
	if err != nil {
		log.Fatal(err)
	}

	switch thisUrl.Scheme {
	case "sim":
		return &search.Sim{
			Detectors: dets,
			StartGps:  1e9,
			Stride:    *stride,
			Blocks:    *simBlocks,
			Rate:      *simRate,
			Removals:  *simRemovals,
			Seed:      *simSeed,
		}
	default:
		// The filtering engine proper is an external dependency; the
		// channel and conditioning flags are forwarded to it when one
		// is linked in.
		log.Fatalf("no engine for strain scheme %q", thisUrl.Scheme)
		return nil
	}
}

// pushBlocks retransmits finished blocks to the live monitor ingress over
// websocket, reconnecting once before giving up.
func pushBlocks(cfg search.Config, push <-chan *data.Block) {
	var writer *data.RunWriter
	tryConn := func() error {
		conn, err := websocket.Dial(*monitorURL, "", "http://localhost/")
		if err != nil {
			writer = nil
			return err
		}

		writer, err = data.NewRunWriter(conn)
		if err != nil {
			conn.Close()
			return err
		}
		writer.DeferUntilClose(conn.Close)

		return writer.PushHeader(&data.RunHeader{
			Run:        cfg.Run,
			Detectors:  cfg.Detectors,
			BankFile:   cfg.Bank.File,
			SampleRate: cfg.SampleRate,
			Metadata:   cfg.Metadata,
		})
	}

	for i := 0; i < 2; i++ {
		err := tryConn()
		if err == nil {
			defer writer.Close()
			goto pushLoop
		}
		log.Println(err)
	}
	return

pushLoop:
	for block := range push {
		if err := writer.Push(block); err != nil {
			log.Println(err)
			for i := 0; i < 2; i++ {
				err := tryConn()
				if err == nil {
					defer writer.Close()
					goto pushLoop
				}
				log.Println(err)
			}
			return
		}
	}
}
