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

// Averages the traces of a .trs trace set per value of one data byte and
// prints the per value counts with the range of each mean trace. With
// -output the mean traces are saved as a trace set whose single data byte
// is the value.
//
// $ go run ./cmd/condaver -traceset traces/swaes.trs -byte 1 -lo 900 -hi 1100
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/gosca"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/floats"
)

var (
	traceSetFlag = flag.String("traceset", "", "Input .trs file")
	byteFlag     = flag.Int("byte", 0, "Data byte to average on")
	loFlag       = flag.Int("lo", 0, "First sample of the window")
	hiFlag       = flag.Int("hi", 0, "End of the sample window, 0 for all samples")
	tracesFlag   = flag.Int("traces", 0, "Number of traces to average, 0 for all")
	outputFlag   = flag.String("output", "", "Averaged .trs output file")
)

func init() {
	flag.Parse()
}

func main() {
	defer glog.Flush()

	ts, err := gosca.OpenTraceSet(*traceSetFlag)
	if err != nil {
		glog.Fatal(err)
	}
	defer ts.Close()

	n := *tracesFlag
	if n == 0 {
		n = ts.NumTraces()
	}
	if *byteFlag < 0 || *byteFlag >= ts.DataSpace {
		glog.Fatalf("Byte %d out of the %d data bytes", *byteFlag, ts.DataSpace)
	}
	w := gosca.Window{Lo: *loFlag, Hi: *hiFlag}
	if w.Hi == 0 && w.Lo > 0 {
		w.Hi = ts.SampleCount
	}
	avg, err := gosca.NewConditionalAverager(256, w.Len(ts.SampleCount))
	if err != nil {
		glog.Fatal(err)
	}
	if err = avg.Feed(ts, gosca.ByteSelector(*byteFlag), w, 0, n); err != nil {
		glog.Fatal(err)
	}
	glog.Infof("Averaged %s traces into %d values", humanize.Comma(int64(n)), avg.Observed())

	values, means := avg.Snapshot()
	if len(values) == 0 {
		glog.Fatal("No traces to average")
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Value", "Traces", "Min", "Max"})
	for i, v := range values {
		row := means.RawRowView(i)
		table.Append([]string{fmt.Sprintf("0x%02x", v), humanize.Comma(int64(avg.Count(v))),
			fmt.Sprintf("%f", floats.Min(row)), fmt.Sprintf("%f", floats.Max(row))})
	}
	table.Render()

	if *outputFlag == "" {
		return
	}
	_, length := means.Dims()
	traces := make([]gosca.Trace, len(values))
	for i, v := range values {
		traces[i] = gosca.Trace{Data: []byte{byte(v)}, Samples: means.RawRowView(i)}
	}
	h := gosca.Header{
		SampleCount: length,
		Coding:      gosca.CodingFloat,
		DataSpace:   1,
		GlobalTitle: ts.GlobalTitle,
		Description: fmt.Sprintf("Means of %s per value of data byte %d", *traceSetFlag, *byteFlag),
		LabelX:      ts.LabelX,
		LabelY:      ts.LabelY,
		ScaleX:      ts.ScaleX,
		ScaleY:      ts.ScaleY,
	}
	if err = gosca.SaveTraceSet(*outputFlag, h, traces); err != nil {
		glog.Fatal(err)
	}
	glog.Infof("Saved %d mean traces to %s", len(traces), *outputFlag)
}
