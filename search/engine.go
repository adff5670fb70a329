// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package search drives the low-latency multi-detector search loop. All
// substantive computation (matched filtering, PSD estimation, strain
// conditioning, background estimation) lives behind the Engine interfaces
// and is supplied by external engine bindings; this package only
// orchestrates.
package search

import (
	"context"

	"github.com/gravwave/gw-live/bank"
	"github.com/gravwave/gw-live/data"
)

// Segment identifies one analysis stride of buffered strain. The strain
// itself never crosses this boundary; the engine resolves the segment
// internally.
type Segment struct {
	Seq      uint64
	GpsStart float64
	GpsEnd   float64
}

// StrainBuffer fronts the engine's stream buffer, which owns frame
// ingestion, state and data-quality gating, highpass conditioning,
// autogating, and PSD recalculation.
type StrainBuffer interface {
	// Advance blocks until the engine has consumed the next analysis
	// stride. ready is false when the buffer does not yet hold enough
	// usable data to filter the stride; ok is false when the stream ended.
	Advance(ctx context.Context) (seg Segment, ready, ok bool)

	// Psds returns the current per-detector noise-floor arrays.
	Psds() map[string][]float64
}

// FilterCore matched-filters one worker's bank partition against a segment.
// Mapping a detector to nil marks it invalid for the block.
type FilterCore interface {
	Filter(seg Segment) data.ResultSet
}

// Background folds a block's merged results into the running background
// estimate. It returns the coincident datasets (index 0 the full dataset,
// then one per hierarchical removal stage) and any candidates worth
// considering for upload.
type Background interface {
	Update(seg Segment, merged data.ResultSet) ([]*data.TriggerSet, []*data.Candidate)
}

// Engine is the external detection engine as seen by the driver.
type Engine interface {
	Buffer() StrainBuffer
	NewCore(partition []*bank.Template) FilterCore
	Background() Background
}

// Uploader submits a rendered candidate-event document to an alert service.
type Uploader interface {
	Submit(ctx context.Context, doc []byte, filename string) (id string, err error)
}
