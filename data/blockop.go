// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

// BlockProcessor mutates a single block in place.
type BlockProcessor func(*Block)

// BlockOp applies a BlockProcessor concurrently while preserving block
// order on the output channel.
type BlockOp struct {
	Description    string
	BlockProcessor BlockProcessor
	Concurrency    int
	MaxBlockBuf    int
}

func (o BlockOp) GetDescription() string {
	return o.Description
}

func (o BlockOp) Run(input <-chan *Block) <-chan *Block {
	if o.Concurrency == 0 {
		o.Concurrency = *concurrency
	}

	if o.MaxBlockBuf == 0 {
		o.MaxBlockBuf = *maxBlockBuf
	}

	output := make(chan *Block, o.MaxBlockBuf)

	go func() {
		defer close(output)

		procBlocks := make(map[uint64]*Block)
		doneBlocks := make(map[uint64]*Block)
		done := make(chan uint64)
		ackDone := func() {
			index := <-done
			doneBlocks[index] = procBlocks[index]
			delete(procBlocks, index)
		}
		defer close(done)

		nRead := uint64(0)
		nWritten := uint64(0)
		writeOut := func() {
			for {
				if block, ok := doneBlocks[nWritten]; ok {
					output <- block
					delete(doneBlocks, nWritten)
					nWritten++
				} else {
					break
				}
			}
		}

		for block := range input {
			go func(block *Block, done chan<- uint64, index uint64) {
				o.BlockProcessor(block)
				done <- index
			}(block, done, nRead)
			procBlocks[nRead] = block
			nRead++

			for len(procBlocks) >= o.Concurrency || len(doneBlocks) >= o.MaxBlockBuf {
				ackDone()
				writeOut()
			}
		}

		for len(procBlocks) > 0 {
			ackDone()
		}
		writeOut()
	}()

	return output
}
