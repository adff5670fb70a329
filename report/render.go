// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package report

import (
	"html/template"
	"io"

	"github.com/gobuffalo/packr"
)

var WebdataBox = packr.NewBox("webdata")

// RenderHTML writes the report page: the ranked table, or the diagnostic
// page when the requested removal stage was never performed.
func (r *Report) RenderHTML(w io.Writer) error {
	page := "report.html"
	if r.ExceedsRemovals() {
		page = "removals.html"
	}

	text, err := WebdataBox.FindString(page)
	if err != nil {
		return err
	}
	tmpl, err := template.New(page).Parse(text)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, r)
}
