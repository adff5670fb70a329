// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gravwave/gw-live/bank"
	"github.com/gravwave/gw-live/report"

	"github.com/skratchdot/open-golang/open"
)

var (
	bankFile     = flag.String("bank", "", "template bank file (required)")
	nLoudest     = flag.Int("n", 10, "number of ranked rows in the table")
	removalIndex = flag.Int("r", 0, "hierarchical removal index; 0 reads the full dataset")
	outFile      = flag.String("o", "", "output file; stdout when empty")
	xmlOut       = flag.Bool("x", false, "write the loudest candidate as an XML event document instead of HTML")
	openBrowser  = flag.Bool("b", false, "open the rendered report in a browser")
	creds        = flag.String("credentials", "", "service account credentials file for gs results")
)

func printUsage() {
	fmt.Fprintf(os.Stderr,
		`Usage: `+os.Args[0]+` [options] <results-url>

Renders a ranked table of the loudest coincident detections in a run file

options:
`,
	)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() != 1 || *bankFile == "" {
		printUsage()
		log.Fatal("invalid arguments")
	}

	bk, err := bank.Load(*bankFile)
	if err != nil {
		log.Fatal(err)
	}

	block, err := report.Open(context.Background(), flag.Arg(0), *creds)
	if err != nil {
		log.Fatal(err)
	}

	r, err := report.Build(block, bk, *removalIndex, *nLoudest)
	if err != nil {
		log.Fatal(err)
	}

	out := os.Stdout
	if *outFile != "" {
		out, err = os.Create(*outFile)
		if err != nil {
			log.Fatal(err)
		}
		defer out.Close()
	}

	if *xmlOut && !r.ExceedsRemovals() {
		cand, err := r.LoudestCandidate()
		if err != nil {
			log.Fatal(err)
		}
		doc, err := cand.MarshalXML()
		if err != nil {
			log.Fatal(err)
		}
		if _, err := out.Write(doc); err != nil {
			log.Fatal(err)
		}
	} else {
		if err := r.RenderHTML(out); err != nil {
			log.Fatal(err)
		}
	}

	if *openBrowser && *outFile != "" {
		open.Run(*outFile)
	}
}
