// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

// DropPsds removes per-detector PSD arrays before a block is persisted to a
// monitoring run recording.
func DropPsds(block *Block) {
	block.Psds = nil
}

// KeepOnlyCoincs strips the per-detector trigger columns, leaving the
// coincident datasets. Used when recording long monitoring runs where the
// single-detector columns dominate the file size.
func KeepOnlyCoincs(block *Block) {
	block.Results = make(ResultSet)
}
