// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusKeepsFirstSeenOrder(t *testing.T) {
	var s Status
	s.SetString("Run", "bns-early")
	s.SetFloat("GPS Time", 1187008882.43, 2)
	s.SetInt("Removal Stages", 3)
	s.SetString("Run", "bns-late")

	meta := make(map[string]string)
	s.Fill(meta)

	assert.Equal(t, "bns-late", meta["Run"])
	assert.Equal(t, "1187008882.43", meta["GPS Time"])
	assert.Equal(t, "3", meta["Removal Stages"])
	assert.Equal(t, "Run,GPS Time,Removal Stages", meta["status keys"])
}
