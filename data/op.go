// Copyright 2020 Gravwave Observatory Software Collaboration
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package data

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/websocket"
)

type Op interface {
	GetDescription() string
	Run(input <-chan *Block) <-chan *Block
}

type OpArray []Op

func (ops OpArray) Run(stream <-chan *Block) <-chan *Block {
	for _, o := range ops {
		stream = o.Run(stream)
	}
	return stream
}

func (ops OpArray) Sink(stream <-chan *Block) {
	for range ops.Run(stream) {
	}
}

var FlagSet = flag.NewFlagSet("", flag.ExitOnError)

var (
	outFile     = FlagSet.String("o", "", "file to save output to")
	readBufSize = FlagSet.Int("b", 10, "read buffer size in number of blocks")
	concurrency = FlagSet.Int("t", 1, "level of concurrency")
	maxBlockBuf = FlagSet.Int("e", 200, "max block buffer for maintaining block order")
	loop        = FlagSet.Bool("l", false, "infinite loop over data")
	cpuProfile  = FlagSet.String("cpuprofile", "", "output file for cpu profiling")
	memProfile  = FlagSet.String("memprofile", "", "output file for memory profiling")
)

func (ops OpArray) RunCmdFlagParse() {
	var desc string
	for i, o := range ops {
		desc += strconv.Itoa(i) + ") "
		desc += o.GetDescription()
		if i < len(ops)-1 {
			desc += "\n"
		}
	}

	FlagSet.Usage = func() {
		fmt.Fprintf(os.Stderr,
			`Usage: `+os.Args[0]+` [options] <run-input-file>

`+desc+`

options:
`,
		)
		FlagSet.PrintDefaults()
	}
	FlagSet.Parse(os.Args[1:])

	if FlagSet.NArg() != 1 {
		FlagSet.Usage()
		log.Fatal("Invalid arguments")
	}
}

func (ops OpArray) GetReader() *RunReader {
	ops.RunCmdFlagParse()

	reader, err := openRunArg(FlagSet.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	return reader
}

func openRunArg(filename string) (*RunReader, error) {
	if filename == "-" {
		stdin := bufio.NewReader(os.Stdin)
		return NewRunReader(stdin)
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	reader, err := NewRunReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	reader.DeferUntilClose(f.Close)
	return reader, nil
}

func (ops OpArray) RunCmd() {
	ops.RunCmdFlagParse()

	filename := FlagSet.Arg(0)
	reader, err := openRunArg(filename)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { reader.Close() }()

	var writer *RunWriter
	var conn *websocket.Conn
	if strings.HasPrefix(*outFile, "ws") && strings.Contains(*outFile, "://") {
		conn, err = websocket.Dial(*outFile, "", "http://localhost/")
		if err != nil {
			log.Fatal(err)
		}
		writer, err = NewRunWriter(conn)
		if err != nil {
			log.Fatal(err)
		}
		writer.DeferUntilClose(conn.Close)
	} else if *outFile == "" {
		writer, err = NewRunWriter(os.Stdout)
	} else {
		var f *os.File
		f, err = os.Create(*outFile)
		if err != nil {
			log.Fatal(err)
		}
		writer, err = NewRunWriter(f)
		if err != nil {
			log.Fatal(err)
		}
		writer.DeferUntilClose(f.Close)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer writer.Close()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal("could not create cpu profile file: ", err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	headerPushed := false
	for {
		stream := ops.Run(reader.ScanBlocks(*readBufSize))
		for block := range stream {
			if !headerPushed && reader.Header() != nil {
				if err := writer.PushHeader(reader.Header()); err != nil {
					goto wrapup
				}
				headerPushed = true
			}
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			}
			if err := writer.Push(block); err != nil {
				goto wrapup
			}
		}

		if reader.Err != nil {
			log.Print(reader.Err)
			break
		}
		if !*loop || filename == "-" {
			break
		}
		reader.Close()
		reader, err = openRunArg(filename)
		if err != nil {
			log.Fatal(err)
		}
	}

wrapup:
	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			log.Fatal(err)
		}
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
		f.Close()
	}
}
