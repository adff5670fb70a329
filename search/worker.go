// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package search

import (
	"github.com/gravwave/gw-live/data"
)

// workerPool runs one goroutine per filter core. The pool mirrors the
// fixed-rank layout of the search: rank 0 is the coordinator and filters
// nothing, so a pool built for n slots holds n-1 cores.
type workerPool struct {
	segs     []chan Segment
	results  []chan data.ResultSet
	barriers []chan struct{}
	sync     bool
}

func newWorkerPool(cores []FilterCore, sync bool) *workerPool {
	p := &workerPool{sync: sync}

	for _, core := range cores {
		segs := make(chan Segment)
		results := make(chan data.ResultSet)
		barrier := make(chan struct{})
		p.segs = append(p.segs, segs)
		p.results = append(p.results, results)
		p.barriers = append(p.barriers, barrier)

		go func(core FilterCore, segs <-chan Segment, results chan<- data.ResultSet, barrier <-chan struct{}) {
			defer close(results)
			for seg := range segs {
				results <- core.Filter(seg)
				if sync {
					<-barrier
				}
			}
		}(core, segs, results, barrier)
	}

	return p
}

// dispatch hands the segment to every worker.
func (p *workerPool) dispatch(seg Segment) {
	for _, segs := range p.segs {
		segs <- seg
	}
}

// gather performs the blocking collective: it collects each worker's result
// for the current segment, in worker order.
func (p *workerPool) gather() []data.ResultSet {
	gathered := make([]data.ResultSet, len(p.results))
	for i, results := range p.results {
		gathered[i] = <-results
	}
	return gathered
}

// release ends the iteration barrier when synchronized timing is requested.
func (p *workerPool) release() {
	if !p.sync {
		return
	}
	for _, barrier := range p.barriers {
		barrier <- struct{}{}
	}
}

func (p *workerPool) close() {
	for _, segs := range p.segs {
		close(segs)
	}
}
