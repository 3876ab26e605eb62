// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Prints the header of .trs trace sets.
//
// $ go run ./cmd/trsinfo traces/*.trs
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/google/gosca"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/olekukonko/tablewriter"
)

var (
	firstFlag = flag.Bool("first", false, "Also print the title and data of the first trace")
)

func init() {
	flag.Parse()
}

func describe(filename string) error {
	ts, err := gosca.OpenTraceSet(filename)
	if err != nil {
		return err
	}
	defer ts.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{filename, ""})
	table.AppendBulk([][]string{
		{"Traces", humanize.Comma(int64(ts.TraceCount))},
		{"Samples", fmt.Sprintf("%s x %v", humanize.Comma(int64(ts.SampleCount)), ts.Coding)},
		{"Data bytes", fmt.Sprint(ts.DataSpace)},
		{"Title bytes", fmt.Sprint(ts.TitleSpace)},
		{"Trace size", humanize.Bytes(uint64(ts.TraceSpace()))},
		{"Trace block", fmt.Sprintf("%s at offset %d", humanize.Bytes(uint64(ts.TraceBlockSpace())), ts.TraceBlockOffset)},
		{"Title", ts.GlobalTitle},
		{"Description", ts.Description},
		{"Axes", fmt.Sprintf("%s (offset %d, scale %g) / %s (scale %g)", ts.LabelX, ts.OffsetX, ts.ScaleX, ts.LabelY, ts.ScaleY)},
	})
	if *firstFlag && ts.TraceCount > 0 {
		t, err := ts.Trace(0)
		if err != nil {
			return err
		}
		table.Append([]string{"First title", t.Title})
		table.Append([]string{"First data", hex.EncodeToString(t.Data)})
	}
	table.Render()
	return nil
}

func main() {
	defer glog.Flush()

	if flag.NArg() == 0 {
		glog.Fatal("Usage: trsinfo [-first] FILE.trs...")
	}
	for _, f := range flag.Args() {
		if err := describe(f); err != nil {
			glog.Fatal(err)
		}
	}
}
