// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionNamespaces(t *testing.T) {
	values := map[interface{}]interface{}{
		"app_metadata": map[string]interface{}{
			"data namespaces": []interface{}{"gw-data-dev1", "everyone"},
		},
	}
	assert.Equal(t, []string{"gw-data-dev1", "everyone"}, sessionNamespaces(values))
}

func TestSessionNamespacesDefaultsToPublic(t *testing.T) {
	assert.Equal(t, []string{"everyone"}, sessionNamespaces(map[interface{}]interface{}{}))
}

func TestSessionNickname(t *testing.T) {
	values := map[interface{}]interface{}{"nickname": "observer"}
	assert.Equal(t, "observer", sessionNickname(values))
	assert.Equal(t, "nobody", sessionNickname(map[interface{}]interface{}{}))
}
