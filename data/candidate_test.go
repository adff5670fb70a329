// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coincCandidate(ifar float64) *Candidate {
	return &Candidate{
		Run:     "test",
		GpsTime: 1e9,
		Stat:    12.5,
		Ifar:    ifar,
		Snr:     map[string]float64{"H1": 9.1, "L1": 8.7},
		Chisq:   map[string]float64{"H1": 1.1, "L1": 0.9},
	}
}

func TestShouldUploadRequiresEnabledAndIfarAboveThreshold(t *testing.T) {
	c := coincCandidate(150)

	assert.True(t, c.ShouldUpload(true, 100, false))
	assert.False(t, c.ShouldUpload(false, 100, false), "disabled submission never uploads")

	c.Ifar = 100
	assert.False(t, c.ShouldUpload(true, 100, false), "threshold is strict")

	c.Ifar = 100.0001
	assert.True(t, c.ShouldUpload(true, 100, false))

	c.Ifar = 50
	assert.False(t, c.ShouldUpload(true, 100, false))
}

func TestShouldUploadGatesSingleDetectorCandidates(t *testing.T) {
	c := coincCandidate(1000)
	c.Snr = map[string]float64{"H1": 12}
	c.Chisq = map[string]float64{"H1": 1.0}

	require.True(t, c.Single())
	assert.False(t, c.ShouldUpload(true, 100, false))
	assert.True(t, c.ShouldUpload(true, 100, true))

	// Threshold still applies with the single-detector toggle on.
	c.Ifar = 10
	assert.False(t, c.ShouldUpload(true, 100, true))
}

func TestCandidateXMLListsMembersInDetectorOrder(t *testing.T) {
	c := coincCandidate(150)
	c.Snr["V1"] = 5.2
	c.Chisq["V1"] = 1.4

	doc, err := c.MarshalXML()
	require.NoError(t, err)

	s := string(doc)
	assert.True(t, strings.HasPrefix(s, "<?xml"))
	assert.Contains(t, s, "<coinc_event")
	h1 := strings.Index(s, `detector="H1"`)
	l1 := strings.Index(s, `detector="L1"`)
	v1 := strings.Index(s, `detector="V1"`)
	require.True(t, h1 >= 0 && l1 >= 0 && v1 >= 0)
	assert.True(t, h1 < l1 && l1 < v1)
}
