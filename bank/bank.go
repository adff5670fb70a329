// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package bank loads template banks and assigns bank partitions to filter
// workers.
package bank

import (
	"fmt"
	"math"
	"sort"

	"go-hep.org/x/hep/csvutil"
)

type Template struct {
	Id     int64
	Mass1  float64
	Mass2  float64
	Spin1z float64
	Spin2z float64
}

// ChirpMass returns the sort key used for bank partitioning.
func (t *Template) ChirpMass() float64 {
	m := t.Mass1 + t.Mass2
	if m <= 0 {
		return 0
	}
	return math.Pow(t.Mass1*t.Mass2, 0.6) / math.Pow(m, 0.2)
}

type Bank struct {
	File      string
	Templates []*Template
}

// Load reads a whitespace-separated bank table of
// mass1 mass2 spin1z spin2z rows. Template ids are row indices in file
// order, assigned before any sorting.
func Load(fname string) (*Bank, error) {
	tbl, err := csvutil.Open(fname)
	if err != nil {
		return nil, err
	}
	defer tbl.Close()
	tbl.Reader.Comma = ' '
	tbl.Reader.Comment = '#'

	rows, err := tbl.ReadRows(0, -1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	b := &Bank{File: fname}
	for rows.Next() {
		t := &Template{Id: int64(len(b.Templates))}
		if err := rows.Scan(&t.Mass1, &t.Mass2, &t.Spin1z, &t.Spin2z); err != nil {
			return nil, err
		}
		b.Templates = append(b.Templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(b.Templates) == 0 {
		return nil, fmt.Errorf("bank %v holds no templates", fname)
	}

	return b, nil
}

// ById returns the template with the given id, or nil.
func (b *Bank) ById(id int64) *Template {
	for _, t := range b.Templates {
		if t.Id == id {
			return t
		}
	}
	return nil
}

// Partition sorts the bank by chirp mass and deals templates round-robin
// over n slices. Sorting keeps each worker's partition spread over the full
// chirp-mass range so that per-iteration filter cost stays balanced.
func (b *Bank) Partition(n int) [][]*Template {
	if n <= 0 {
		return nil
	}

	sorted := make([]*Template, len(b.Templates))
	copy(sorted, b.Templates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ChirpMass() < sorted[j].ChirpMass()
	})

	parts := make([][]*Template, n)
	for i, t := range sorted {
		parts[i%n] = append(parts[i%n], t)
	}
	return parts
}
