// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type RunObject struct {
	Name string
}

func ListResourceRuns(ctx context.Context, urlString, credentials string) (runs []*RunObject, err error) {
	var thisUrl *url.URL
	thisUrl, err = url.Parse(urlString)
	if err != nil {
		return
	}

	switch thisUrl.Scheme {
	case "gs":
		runs, err = ListGcsRuns(
			ctx,
			thisUrl.Host,
			strings.TrimLeft(thisUrl.Path, "/"),
			[]byte(credentials),
		)
	case "file":
		var files []string
		files, err = filepath.Glob(fmt.Sprintf("%v/%v/*.rio", thisUrl.Host, strings.TrimLeft(thisUrl.Path, "/")))
		for _, file := range files {
			runs = append(runs, &RunObject{Name: path.Base(file)})
		}
	default:
		err = errors.New("bad url scheme")
	}
	return
}

func GetReader(ctx context.Context, urlString, credentials string) (reader *RunReader, err error) {
	var thisUrl *url.URL
	thisUrl, err = url.Parse(urlString)
	if err != nil {
		return
	}

	switch thisUrl.Scheme {
	case "gs":
		reader, err = CreateGcsReader(
			ctx,
			thisUrl.Host,
			strings.TrimLeft(thisUrl.Path, "/"),
			[]byte(credentials),
		)
	case "file":
		var f *os.File
		f, err = os.Open(filepath.Clean(fmt.Sprintf("%v/%v", thisUrl.Host, strings.TrimLeft(thisUrl.Path, "/"))))
		if err != nil {
			return
		}
		reader, err = NewRunReader(f)
		if err != nil {
			f.Close()
			return
		}
		reader.DeferUntilClose(f.Close)
	default:
		err = errors.New("bad url scheme")
	}
	return
}

func GetWriter(ctx context.Context, urlString, credentials string) (writer *RunWriter, err error) {
	var thisUrl *url.URL
	thisUrl, err = url.Parse(urlString)
	if err != nil {
		return
	}

	switch thisUrl.Scheme {
	case "gs":
		writer, err = CreateGcsWriter(
			ctx,
			thisUrl.Host,
			strings.TrimLeft(thisUrl.Path, "/"),
			[]byte(credentials),
		)
	case "file":
		name := filepath.Clean(fmt.Sprintf("%v/%v", thisUrl.Host, thisUrl.Path))
		if err = os.MkdirAll(filepath.Dir(name), 0755); err != nil {
			return
		}
		var f *os.File
		f, err = os.Create(name)
		if err != nil {
			return
		}
		writer, err = NewRunWriter(f)
		if err != nil {
			f.Close()
			return
		}
		writer.DeferUntilClose(f.Close)
	default:
		err = errors.New("bad url scheme")
	}

	return
}
