// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

// StreamProcessor consumes an ordered block stream and emits a transformed
// one. It owns any state carried between blocks.
type StreamProcessor func(<-chan *Block, chan<- *Block)

type StreamOp struct {
	Description     string
	StreamProcessor StreamProcessor
	MaxBlockBuf     int
}

func (o StreamOp) GetDescription() string {
	return o.Description
}

func (o StreamOp) Run(input <-chan *Block) <-chan *Block {
	if o.MaxBlockBuf == 0 {
		o.MaxBlockBuf = *maxBlockBuf
	}

	output := make(chan *Block, o.MaxBlockBuf)

	go func() {
		defer close(output)

		o.StreamProcessor(input, output)
	}()

	return output
}
