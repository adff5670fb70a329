// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"net/http"

	"github.com/gobuffalo/packr"
)

// WebdataBox embeds the monitor's browser client.
var WebdataBox = packr.NewBox("webdata")

// Webdata serves the embedded client assets under the given URL prefix.
func Webdata(prefix string) http.Handler {
	return http.StripPrefix(prefix, http.FileServer(WebdataBox))
}
