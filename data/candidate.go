// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"encoding/xml"
	"sort"
)

// Candidate is one coincident (or single-detector) detection pulled from a
// block's coincident dataset.
type Candidate struct {
	Run        string
	GpsTime    float64
	Stat       float64
	Ifar       float64
	Pvalue     float64
	TemplateId int64
	TriggerId  int64

	// Per-detector members contributing to the candidate.
	Snr   map[string]float64
	Chisq map[string]float64
}

func (c *Candidate) Detectors() []string {
	var dets []string
	for det := range c.Snr {
		dets = append(dets, det)
	}
	sort.Strings(dets)
	return dets
}

// Single reports whether fewer than two detectors contributed.
func (c *Candidate) Single() bool {
	return len(c.Snr) < 2
}

// ShouldUpload decides whether a candidate is submitted to the alert service
// in addition to the on-disk record. A candidate is submitted iff submission
// is enabled, its inverse false-alarm rate strictly exceeds the threshold,
// and single-detector candidates have been allowed when applicable.
func (c *Candidate) ShouldUpload(enabled bool, ifarThreshold float64, allowSingle bool) bool {
	if !enabled {
		return false
	}
	if !(c.Ifar > ifarThreshold) {
		return false
	}
	if c.Single() && !allowSingle {
		return false
	}
	return true
}

type candidateMember struct {
	Detector string  `xml:"detector,attr"`
	Snr      float64 `xml:"snr,attr"`
	Chisq    float64 `xml:"chisq,attr"`
}

type candidateXML struct {
	XMLName    xml.Name          `xml:"coinc_event"`
	Run        string            `xml:"run,attr"`
	GpsTime    float64           `xml:"end_time,attr"`
	Stat       float64           `xml:"stat,attr"`
	Ifar       float64           `xml:"ifar,attr"`
	Pvalue     float64           `xml:"pval,attr"`
	TemplateId int64             `xml:"template_id,attr"`
	TriggerId  int64             `xml:"trigger_id,attr"`
	Members    []candidateMember `xml:"member"`
}

// MarshalXML renders the candidate-event document submitted to the alert
// service and written alongside the run file.
func (c *Candidate) MarshalXML() ([]byte, error) {
	doc := &candidateXML{
		Run:        c.Run,
		GpsTime:    c.GpsTime,
		Stat:       c.Stat,
		Ifar:       c.Ifar,
		Pvalue:     c.Pvalue,
		TemplateId: c.TemplateId,
		TriggerId:  c.TriggerId,
	}
	for _, det := range c.Detectors() {
		doc.Members = append(doc.Members, candidateMember{
			Detector: det,
			Snr:      c.Snr[det],
			Chisq:    c.Chisq[det],
		})
	}

	buf, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), buf...), nil
}
