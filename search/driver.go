// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package search

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gravwave/gw-live/bank"
	"github.com/gravwave/gw-live/data"

	"gonum.org/v1/gonum/floats"
)

// Date layout for the optional date-prefixed output subdirectories.
var RunDateFormat = "2006_Jan2"

type Config struct {
	Run       string
	Bank      *bank.Bank
	Workers   int // total slots; slot 0 is the coordinator and filters nothing
	Sync      bool
	EndTime   time.Time
	Detectors []string

	// SampleRate and Metadata record the conditioning configuration handed
	// to the engine, so run files carry the analysis settings.
	SampleRate float64
	Metadata   map[string]string

	OutputURL    string
	Credentials  string
	DatePrefix   bool
	StorePsds    bool
	StoreLoudest bool

	EnableUploads      bool
	AllowSingleUploads bool
	IfarThreshold      float64
}

type Driver struct {
	Config   Config
	Engine   Engine
	Uploader Uploader

	// OnBlock, when set, receives every finished block after it has been
	// persisted. Used to feed the live monitor.
	OnBlock func(*data.Block)
}

// Run executes the search loop until the configured end time passes, the
// strain stream ends, or the context is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	cfg := d.Config
	if cfg.Workers < 2 {
		return fmt.Errorf("need at least 2 worker slots, got %v", cfg.Workers)
	}

	partitions := cfg.Bank.Partition(cfg.Workers - 1)
	cores := make([]FilterCore, len(partitions))
	for i, part := range partitions {
		cores[i] = d.Engine.NewCore(part)
	}
	pool := newWorkerPool(cores, cfg.Sync)
	defer pool.close()

	buffer := d.Engine.Buffer()
	background := d.Engine.Background()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !cfg.EndTime.IsZero() && !time.Now().Before(cfg.EndTime) {
			log.Println("end time reached, quitting nicely")
			return nil
		}

		seg, ready, ok := buffer.Advance(ctx)
		if !ok {
			log.Println("strain stream ended")
			return nil
		}
		if !ready {
			log.Printf("insufficient data to filter [%v, %v), skipping iteration", seg.GpsStart, seg.GpsEnd)
			continue
		}
		seg.Seq = seq
		seq++

		pool.dispatch(seg)
		gathered := pool.gather()
		pool.release()

		merged := data.Merge(gathered)
		coincs, candidates := background.Update(seg, merged)

		block := d.assembleBlock(seg, merged, coincs, buffer)
		if err := d.writeBlock(ctx, block); err != nil {
			return err
		}

		for _, cand := range candidates {
			cand.Run = cfg.Run
			if err := d.routeCandidate(ctx, cand); err != nil {
				return err
			}
		}

		if d.OnBlock != nil {
			d.OnBlock(block)
		}
	}
}

func (d *Driver) assembleBlock(seg Segment, merged data.ResultSet, coincs []*data.TriggerSet, buffer StrainBuffer) *data.Block {
	cfg := d.Config

	block := data.NewBlock()
	block.Run = cfg.Run
	block.Seq = seg.Seq
	block.GpsStart = seg.GpsStart
	block.GpsEnd = seg.GpsEnd
	block.Results = merged
	block.Coincs = coincs

	if cfg.StorePsds {
		block.Psds = buffer.Psds()
	}

	if cfg.StoreLoudest && len(coincs) > 0 {
		if stat := coincs[0].Col(data.ColStat); len(stat) > 0 {
			block.LoudestIndex = floats.MaxIdx(stat)
		}
	}

	return block
}

// outputURL resolves the run output directory, including the date-named
// subdirectory when requested. Blocks and candidate documents share it.
func (d *Driver) outputURL() string {
	cfg := d.Config
	urlString := strings.TrimRight(cfg.OutputURL, "/")
	if cfg.DatePrefix {
		urlString += "/" + time.Now().UTC().Format(RunDateFormat)
	}
	return urlString
}

func (d *Driver) blockURL(block *data.Block) string {
	return fmt.Sprintf("%v/%v-%d.rio", d.outputURL(), d.Config.Run, int64(block.GpsStart))
}

func (d *Driver) writeBlock(ctx context.Context, block *data.Block) error {
	cfg := d.Config

	writer, err := data.GetWriter(ctx, d.blockURL(block), cfg.Credentials)
	if err != nil {
		return err
	}

	header := &data.RunHeader{
		Run:        cfg.Run,
		Detectors:  cfg.Detectors,
		BankFile:   cfg.Bank.File,
		SampleRate: cfg.SampleRate,
		GpsStart:   block.GpsStart,
		Metadata:   cfg.Metadata,
	}
	if err := writer.PushHeader(header); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Push(block); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

// routeCandidate writes the candidate-event document to disk, and submits it
// to the alert service iff uploads are enabled and the candidate's IFAR
// strictly exceeds the configured threshold.
func (d *Driver) routeCandidate(ctx context.Context, cand *data.Candidate) error {
	cfg := d.Config

	doc, err := cand.MarshalXML()
	if err != nil {
		return err
	}

	fname := fmt.Sprintf("%v-%d-%d.xml", cfg.Run, int64(cand.GpsTime), cand.TriggerId)
	if path, ok := d.candidatePath(fname); ok {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := writeFile(path, doc); err != nil {
			return err
		}
	}

	if !cand.ShouldUpload(cfg.EnableUploads, cfg.IfarThreshold, cfg.AllowSingleUploads) {
		return nil
	}

	id, err := d.Uploader.Submit(ctx, doc, fname)
	if err != nil {
		return err
	}
	log.Printf("submitted candidate %v as %v (ifar %.1f)", fname, id, cand.Ifar)
	return nil
}

// candidatePath resolves where the XML document lands for file-scheme output
// URLs, under the same date-prefixed directory as the block files.
// Candidates of gs-scheme runs exist only in the alert service.
func (d *Driver) candidatePath(fname string) (string, bool) {
	thisUrl, err := url.Parse(d.outputURL())
	if err != nil || thisUrl.Scheme != "file" {
		return "", false
	}
	dir := filepath.Clean(fmt.Sprintf("%v/%v", thisUrl.Host, thisUrl.Path))
	return filepath.Join(dir, fname), true
}

func writeFile(path string, buf []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
