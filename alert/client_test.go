// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package alert

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	path     string
	group    string
	filename string
	doc      []byte
}

func eventServer(t *testing.T, status int, last *received) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		last.path = r.URL.Path
		last.group = r.FormValue("group")

		file, header, err := r.FormFile("eventFile")
		require.NoError(t, err)
		defer file.Close()
		last.filename = header.Filename
		last.doc, err = ioutil.ReadAll(file)
		require.NoError(t, err)

		w.WriteHeader(status)
		fmt.Fprint(w, `{"id": "G00042"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitPostsEventDocument(t *testing.T) {
	var last received
	srv := eventServer(t, http.StatusCreated, &last)
	client := NewClient(srv.URL, false)

	doc := []byte("<coinc_event/>")
	id, err := client.Submit(context.Background(), doc, "run-123.xml")
	require.NoError(t, err)

	assert.Equal(t, "G00042", id)
	assert.Equal(t, "/api/events/", last.path)
	assert.Equal(t, "Production", last.group)
	assert.Equal(t, "run-123.xml", last.filename)
	assert.Equal(t, doc, last.doc)
}

func TestSubmitTestingClientFilesUnderTestGroup(t *testing.T) {
	var last received
	srv := eventServer(t, http.StatusCreated, &last)
	client := NewClient(srv.URL, true)

	_, err := client.Submit(context.Background(), []byte("<coinc_event/>"), "x.xml")
	require.NoError(t, err)
	assert.Equal(t, "Test", last.group)
}

func TestSubmitReportsServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, true)
	_, err := client.Submit(context.Background(), []byte("<coinc_event/>"), "x.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
