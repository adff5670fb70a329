// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockOpPreservesOrderUnderConcurrency(t *testing.T) {
	op := BlockOp{
		BlockProcessor: func(b *Block) {
			time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
			b.Metadata["seen"] = "true"
		},
		Concurrency: 8,
		MaxBlockBuf: 4,
	}

	const n = 100
	input := make(chan *Block, n)
	for i := 0; i < n; i++ {
		block := NewBlock()
		block.Seq = uint64(i)
		input <- block
	}
	close(input)

	var seqs []uint64
	for block := range op.Run(input) {
		require.Equal(t, "true", block.Metadata["seen"])
		seqs = append(seqs, block.Seq)
	}

	require.Len(t, seqs, n)
	for i, seq := range seqs {
		assert.Equal(t, uint64(i), seq)
	}
}

func TestStreamOpForwardsAndCloses(t *testing.T) {
	op := StreamOp{
		StreamProcessor: MergeStream,
		MaxBlockBuf:     2,
	}

	input := make(chan *Block, 3)
	for i := 0; i < 3; i++ {
		block := NewBlock()
		block.Seq = uint64(i)
		input <- block
	}
	close(input)

	var n int
	for block := range op.Run(input) {
		assert.Equal(t, uint64(n), block.Seq)
		n++
	}
	assert.Equal(t, 3, n)
}
