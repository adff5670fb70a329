// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package search

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/gravwave/gw-live/bank"
	"github.com/gravwave/gw-live/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	submitted []string
	fail      error
}

func (u *fakeUploader) Submit(ctx context.Context, doc []byte, filename string) (string, error) {
	if u.fail != nil {
		return "", u.fail
	}
	u.submitted = append(u.submitted, filename)
	return fmt.Sprintf("G%05d", len(u.submitted)), nil
}

func testBank(n int) *bank.Bank {
	bk := &bank.Bank{File: "test-bank"}
	for i := 0; i < n; i++ {
		bk.Templates = append(bk.Templates, &bank.Template{
			Id:    int64(i),
			Mass1: 1.4 + float64(i),
			Mass2: 1.4,
		})
	}
	return bk
}

func tmpOutputDir(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "runs")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func routingDriver(t *testing.T, cfg Config) (*Driver, *fakeUploader) {
	t.Helper()
	uploader := &fakeUploader{}
	if cfg.Bank == nil {
		cfg.Bank = testBank(8)
	}
	if cfg.Run == "" {
		cfg.Run = "test"
	}
	return &Driver{Config: cfg, Uploader: uploader}, uploader
}

func TestRouteCandidateUploadsOnlyAboveThreshold(t *testing.T) {
	dir := tmpOutputDir(t)
	d, uploader := routingDriver(t, Config{
		OutputURL:     "file://" + dir,
		EnableUploads: true,
		IfarThreshold: 100,
	})

	loud := &data.Candidate{
		Run: "test", GpsTime: 1e9, Ifar: 150, TriggerId: 1,
		Snr: map[string]float64{"H1": 10, "L1": 9},
	}
	require.NoError(t, d.routeCandidate(context.Background(), loud))
	require.Len(t, uploader.submitted, 1)

	atThreshold := &data.Candidate{
		Run: "test", GpsTime: 1e9, Ifar: 100, TriggerId: 2,
		Snr: map[string]float64{"H1": 10, "L1": 9},
	}
	require.NoError(t, d.routeCandidate(context.Background(), atThreshold))
	assert.Len(t, uploader.submitted, 1, "ifar equal to the threshold stays on disk")

	// Both candidates land on disk regardless of the upload decision.
	files, err := filepath.Glob(filepath.Join(dir, "*.xml"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestRouteCandidateDisabledUploadsStayOnDisk(t *testing.T) {
	dir := tmpOutputDir(t)
	d, uploader := routingDriver(t, Config{
		OutputURL:     "file://" + dir,
		EnableUploads: false,
		IfarThreshold: 1,
	})

	cand := &data.Candidate{
		Run: "test", GpsTime: 1e9, Ifar: 1e6, TriggerId: 7,
		Snr: map[string]float64{"H1": 20, "L1": 18},
	}
	require.NoError(t, d.routeCandidate(context.Background(), cand))

	assert.Empty(t, uploader.submitted)
	files, err := filepath.Glob(filepath.Join(dir, "*.xml"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestRouteCandidateSingleDetectorToggle(t *testing.T) {
	dir := tmpOutputDir(t)
	single := &data.Candidate{
		Run: "test", GpsTime: 1e9, Ifar: 1e4, TriggerId: 3,
		Snr: map[string]float64{"H1": 15},
	}

	d, uploader := routingDriver(t, Config{
		OutputURL:     "file://" + dir,
		EnableUploads: true,
		IfarThreshold: 100,
	})
	require.NoError(t, d.routeCandidate(context.Background(), single))
	assert.Empty(t, uploader.submitted)

	d.Config.AllowSingleUploads = true
	require.NoError(t, d.routeCandidate(context.Background(), single))
	assert.Len(t, uploader.submitted, 1)
}

func TestDriverRunWritesOrderedBlocks(t *testing.T) {
	dir := tmpOutputDir(t)

	sim := &Sim{
		Detectors: []string{"H1", "L1"},
		StartGps:  1e9,
		Stride:    8,
		Blocks:    3,
		Rate:      5,
		Removals:  1,
		Seed:      42,
	}

	d := &Driver{
		Config: Config{
			Run:          "simrun",
			Bank:         testBank(16),
			Workers:      3,
			Detectors:    []string{"H1", "L1"},
			SampleRate:   2048,
			Metadata:     map[string]string{"channel": "GWOSC-STRAIN", "flow": "20"},
			OutputURL:    "file://" + dir,
			StorePsds:    true,
			StoreLoudest: true,
		},
		Engine:   sim,
		Uploader: &fakeUploader{},
	}

	var seen []uint64
	d.OnBlock = func(block *data.Block) {
		seen = append(seen, block.Seq)
	}

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, []uint64{0, 1, 2}, seen)

	files, err := filepath.Glob(filepath.Join(dir, "*.rio"))
	require.NoError(t, err)
	require.Len(t, files, 3)

	f, err := os.Open(filepath.Join(dir, "simrun-1000000000.rio"))
	require.NoError(t, err)
	defer f.Close()
	reader, err := data.NewRunReader(f)
	require.NoError(t, err)
	defer reader.Close()

	block := reader.Next()
	require.NotNil(t, block)
	require.NoError(t, reader.Err)

	assert.Equal(t, "simrun", block.Run)
	assert.Equal(t, []string{"H1", "L1"}, block.Results.Detectors())
	assert.Equal(t, 1, block.NRemovals())
	assert.NotEmpty(t, block.Psds["H1"])
	assert.True(t, block.LoudestIndex >= 0)

	assert.Equal(t, "simrun", reader.Header().Run)
	assert.Equal(t, "test-bank", reader.Header().BankFile)
	assert.Equal(t, 2048.0, reader.Header().SampleRate)
	assert.Equal(t, "GWOSC-STRAIN", reader.Header().Metadata["channel"])
	assert.Equal(t, "20", reader.Header().Metadata["flow"])
}

func TestRouteCandidateDatePrefixMatchesBlockDirectory(t *testing.T) {
	dir := tmpOutputDir(t)
	d, _ := routingDriver(t, Config{
		OutputURL:  "file://" + dir,
		DatePrefix: true,
	})

	cand := &data.Candidate{
		Run: "test", GpsTime: 1e9, Ifar: 50, TriggerId: 9,
		Snr: map[string]float64{"H1": 10, "L1": 9},
	}
	require.NoError(t, d.routeCandidate(context.Background(), cand))

	blockDir := d.outputURL()[len("file://"):]
	files, err := filepath.Glob(filepath.Join(blockDir, "*.xml"))
	require.NoError(t, err)
	assert.Len(t, files, 1, "candidates share the date-prefixed block directory")
}

func TestDriverSkipsUnreadyIterations(t *testing.T) {
	dir := tmpOutputDir(t)

	sim := &Sim{
		Detectors: []string{"H1", "L1"},
		StartGps:  1e9,
		Stride:    8,
		Blocks:    6,
		Rate:      5,
		SkipFrac:  0.5,
		Seed:      7,
	}

	d := &Driver{
		Config: Config{
			Run:       "skippy",
			Bank:      testBank(8),
			Workers:   2,
			Detectors: []string{"H1", "L1"},
			OutputURL: "file://" + dir,
		},
		Engine:   sim,
		Uploader: &fakeUploader{},
	}

	var n int
	d.OnBlock = func(block *data.Block) { n++ }

	require.NoError(t, d.Run(context.Background()))
	assert.True(t, n < 6, "skipped strides must not produce blocks")

	files, err := filepath.Glob(filepath.Join(dir, "*.rio"))
	require.NoError(t, err)
	assert.Len(t, files, n)
}

func TestDriverRejectsTooFewWorkers(t *testing.T) {
	d := &Driver{
		Config: Config{Run: "x", Bank: testBank(4), Workers: 1},
		Engine: &Sim{},
	}
	assert.Error(t, d.Run(context.Background()))
}
