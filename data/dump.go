// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"io"

	"go-hep.org/x/hep/rio"
)

// Record names used in run files. A run file is a rio stream with one
// RunHeader record followed by any number of Block records.
const (
	RecHeader = "gw.RunHeader"
	RecBlock  = "gw.Block"
)

// RunWriter persists a run header and analysis blocks as keyed rio records.
type RunWriter struct {
	rio     *rio.Writer
	closers []func() error
}

func NewRunWriter(w io.Writer) (*RunWriter, error) {
	rw, err := rio.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return &RunWriter{rio: rw}, nil
}

// DeferUntilClose registers cleanup to run after the rio stream is closed,
// in registration order.
func (w *RunWriter) DeferUntilClose(f func() error) {
	w.closers = append(w.closers, f)
}

func (w *RunWriter) PushHeader(h *RunHeader) error {
	return w.rio.WriteValue(RecHeader, h)
}

func (w *RunWriter) Push(b *Block) error {
	return w.rio.WriteValue(RecBlock, b)
}

func (w *RunWriter) Close() error {
	err := w.rio.Close()
	for _, f := range w.closers {
		cerr := f()
		if err == nil {
			err = cerr
		}
	}
	return err
}

// RunReader scans a run file. Err is set on decode failure; a nil block from
// Next with a nil Err means end of stream.
type RunReader struct {
	Err error

	rio     *rio.Reader
	scan    *rio.Scanner
	header  *RunHeader
	closers []func() error
}

func NewRunReader(r io.Reader) (*RunReader, error) {
	rr, err := rio.NewReader(r)
	if err != nil {
		return nil, err
	}

	scan := rio.NewScanner(rr)
	scan.Select([]rio.Selector{
		{Name: RecHeader, Unpack: true},
		{Name: RecBlock, Unpack: true},
	})

	return &RunReader{rio: rr, scan: scan}, nil
}

func (r *RunReader) DeferUntilClose(f func() error) {
	r.closers = append(r.closers, f)
}

// Header returns the run header seen so far. It is nil until the header
// record has been scanned past, which happens on the first Next call for
// well-formed run files.
func (r *RunReader) Header() *RunHeader {
	return r.header
}

func (r *RunReader) Next() *Block {
	for r.scan.Scan() {
		rec := r.scan.Record()
		switch rec.Name() {
		case RecHeader:
			hdr := &RunHeader{}
			if err := rec.Block(RecHeader).Read(hdr); err != nil {
				r.Err = err
				return nil
			}
			r.header = hdr
		case RecBlock:
			block := NewBlock()
			if err := rec.Block(RecBlock).Read(block); err != nil {
				r.Err = err
				return nil
			}
			return block
		}
	}
	r.Err = r.scan.Err()
	return nil
}

// ScanBlocks launches a scanning goroutine and returns a buffered channel of
// blocks. The channel closes at end of stream or on error.
func (r *RunReader) ScanBlocks(bufSize int) <-chan *Block {
	blocks := make(chan *Block, bufSize)
	go func() {
		defer close(blocks)
		for {
			block := r.Next()
			if block == nil {
				return
			}
			blocks <- block
		}
	}()
	return blocks
}

func (r *RunReader) Close() error {
	err := r.rio.Close()
	for _, f := range r.closers {
		cerr := f()
		if err == nil {
			err = cerr
		}
	}
	return err
}
