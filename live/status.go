// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"strconv"
	"strings"
)

type SetStringer interface {
	SetString(key, value string)
}

// Status accumulates display fields in first-seen order, so clients render
// a stable status panel no matter which block fields arrived first.
type Status struct {
	Keys       []string
	StringData map[string]string
}

func (s *Status) SetString(key, value string) {
	if s.StringData == nil {
		s.StringData = make(map[string]string)
	}
	if _, ok := s.StringData[key]; !ok {
		s.Keys = append(s.Keys, key)
	}
	s.StringData[key] = value
}

func (s *Status) SetFloat(key string, value float64, prec int) {
	s.SetString(key, strconv.FormatFloat(value, 'f', prec, 64))
}

func (s *Status) SetInt(key string, value int) {
	s.SetString(key, strconv.Itoa(value))
}

// Fill copies the accumulated fields into a status message's metadata,
// recording the display order under "status keys".
func (s *Status) Fill(metadata map[string]string) {
	for _, key := range s.Keys {
		metadata[key] = s.StringData[key]
	}
	metadata["status keys"] = strings.Join(s.Keys, ",")
}
