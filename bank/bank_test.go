// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package bank

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBankFile(t *testing.T, contents string) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "bank")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	fname := filepath.Join(dir, "bank.txt")
	require.NoError(t, ioutil.WriteFile(fname, []byte(contents), 0644))
	return fname
}

func TestLoadAssignsIdsInFileOrder(t *testing.T) {
	fname := writeBankFile(t, `# mass1 mass2 spin1z spin2z
35.0 30.0 0.1 -0.1
1.4 1.4 0.0 0.0
10.0 8.0 0.5 0.2
`)

	bk, err := Load(fname)
	require.NoError(t, err)
	require.Len(t, bk.Templates, 3)

	assert.Equal(t, fname, bk.File)
	assert.Equal(t, int64(0), bk.Templates[0].Id)
	assert.Equal(t, 35.0, bk.Templates[0].Mass1)
	assert.Equal(t, int64(1), bk.Templates[1].Id)
	assert.Equal(t, 1.4, bk.Templates[1].Mass2)
	assert.Equal(t, 0.5, bk.Templates[2].Spin1z)

	assert.Equal(t, bk.Templates[1], bk.ById(1))
	assert.Nil(t, bk.ById(99))
}

func TestLoadRejectsEmptyBank(t *testing.T) {
	fname := writeBankFile(t, "# only a comment\n")
	_, err := Load(fname)
	assert.Error(t, err)
}

func TestPartitionDealsByChirpMassRoundRobin(t *testing.T) {
	bk := &Bank{}
	masses := []float64{30, 1.4, 10, 2.0, 20, 5}
	for i, m := range masses {
		bk.Templates = append(bk.Templates, &Template{Id: int64(i), Mass1: m, Mass2: m})
	}

	parts := bk.Partition(2)
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 3)
	assert.Len(t, parts[1], 3)

	// Equal-mass systems sort by total mass, so the chirp-mass order is
	// 1.4, 2, 5, 10, 20, 30 and the deal alternates between partitions.
	assert.Equal(t, 1.4, parts[0][0].Mass1)
	assert.Equal(t, 2.0, parts[1][0].Mass1)
	assert.Equal(t, 5.0, parts[0][1].Mass1)
	assert.Equal(t, 10.0, parts[1][1].Mass1)
	assert.Equal(t, 20.0, parts[0][2].Mass1)
	assert.Equal(t, 30.0, parts[1][2].Mass1)

	// Every template lands in exactly one partition.
	seen := make(map[int64]bool)
	for _, part := range parts {
		for _, tmpl := range part {
			assert.False(t, seen[tmpl.Id])
			seen[tmpl.Id] = true
		}
	}
	assert.Len(t, seen, len(masses))
}

func TestChirpMass(t *testing.T) {
	tmpl := &Template{Mass1: 1.4, Mass2: 1.4}
	assert.InDelta(t, 1.2188, tmpl.ChirpMass(), 1e-3)

	degenerate := &Template{}
	assert.Equal(t, 0.0, degenerate.ChirpMass())
}
