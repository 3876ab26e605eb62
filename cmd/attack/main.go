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

// Recovers one key chunk from a .trs trace set with CPA and/or LRA.
//
// $ go run ./cmd/attack -config attack.yaml -logtostderr -v=1
// [attack.go:47] Attack: target aes-sbox-out, 256 candidates, distinguishers [cpa lra], averaging true
// [attack.go:172] Loaded 2000 traces into 256 rows of 200 samples
// +---------------+------+-----------+----------+----------+
// | DISTINGUISHER | RANK | CANDIDATE |   PEAK   | LOCATION |
// +---------------+------+-----------+----------+----------+
// | cpa           |    1 | 0x7e      | 0.912316 |      154 |
// | cpa           |    2 | 0x3a      | 0.301877 |      154 |
// ...
//
// Flags override the config file.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/gosca"
	"github.com/google/gosca/attack"

	"github.com/golang/glog"
	"github.com/olekukonko/tablewriter"
)

var (
	configFlag    = flag.String("config", "", "Attack config YAML file")
	traceSetFlag  = flag.String("traceset", "", "Input .trs file")
	tracesFlag    = flag.Int("traces", 0, "Number of traces to attack, 0 for all")
	offsetFlag    = flag.Int("offset", 0, "Index of the first trace")
	byteFlag      = flag.Int("byte", 0, "Index of the first data byte the target reads")
	targetFlag    = flag.String("target", attack.TargetAESSboxOut, "Intermediate under attack")
	knownKeyFlag  = flag.String("known_key", "", "Full key in hex, to rank the correct candidate")
	stepFlag      = flag.Int("evolution_step", 0, "Rerun the attack every this many traces")
	workersFlag   = flag.Int("workers", 0, "Candidates scored in parallel, 0 for GOMAXPROCS")
	averagingFlag = flag.Bool("averaging", false, "Average traces per data value first")
	topFlag       = flag.Int("top", 5, "Candidates to print per distinguisher")
	scoresFlag    = flag.String("scores_out", "", "Directory to save score matrices to as .npy files")
)

func init() {
	flag.Parse()
}

// Config from -config, overridden by the flags given on the command line.
func loadConfig() (attack.Config, error) {
	c := attack.DefaultConfig()
	if *configFlag != "" {
		var err error
		if c, err = attack.LoadConfig(*configFlag); err != nil {
			return c, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "traceset":
			c.TraceSet = *traceSetFlag
		case "traces":
			c.Traces = *tracesFlag
		case "offset":
			c.Offset = *offsetFlag
		case "byte":
			c.Byte = *byteFlag
		case "target":
			c.Target = *targetFlag
		case "known_key":
			c.KnownKey = *knownKeyFlag
		case "evolution_step":
			c.EvolutionStep = *stepFlag
		case "workers":
			c.Workers = *workersFlag
		case "averaging":
			c.Averaging = *averagingFlag
		}
	})
	return c, c.Validate()
}

func printResults(results []*attack.Result) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Distinguisher", "Rank", "Candidate", "Peak", "Location"})
	for _, r := range results {
		ranked := attack.Ranking(r.Peaks, r.Locations)
		if len(ranked) > *topFlag {
			ranked = ranked[:*topFlag]
		}
		for _, s := range ranked {
			table.Append([]string{r.Distinguisher, fmt.Sprint(s.Rank), fmt.Sprintf("0x%02x", s.Candidate),
				fmt.Sprintf("%f", s.Peak), fmt.Sprint(s.Location)})
		}
		if r.Known != nil {
			glog.Infof("%s: correct candidate %v", r.Distinguisher, *r.Known)
		}
		if len(r.Failed) > 0 {
			glog.Warningf("%s: %d candidates failed: %v", r.Distinguisher, len(r.Failed), r.Err)
		}
	}
	table.Render()
}

func printEvolution(points []attack.EvolutionPoint) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Traces", "Distinguisher", "Winner", "Peak", "Rank", "Error"})
	for _, p := range points {
		winner := "-"
		if p.Winner.Candidate >= 0 {
			winner = fmt.Sprintf("0x%02x", p.Winner.Candidate)
		}
		table.Append([]string{fmt.Sprint(p.Traces), p.Distinguisher, winner,
			fmt.Sprintf("%f", p.Winner.Peak), fmt.Sprint(p.Rank), p.Error})
	}
	table.Render()
}

func main() {
	defer glog.Flush()

	c, err := loadConfig()
	if err != nil {
		glog.Fatal(err)
	}
	if c.TraceSet == "" {
		glog.Fatal("No trace set, use -traceset or the config's traceset")
	}
	a, err := attack.New(c)
	if err != nil {
		glog.Fatal(err)
	}

	ts, err := gosca.OpenTraceSet(c.TraceSet)
	if err != nil {
		glog.Fatal(err)
	}
	defer ts.Close()

	if c.EvolutionStep > 0 {
		points, err := a.Evolve(ts, attack.EvolutionConfig{Step: c.EvolutionStep, WarmUp: c.WarmUp})
		if err != nil {
			glog.Fatal(err)
		}
		printEvolution(points)
		return
	}

	data, O, err := a.Load(ts)
	if err != nil {
		glog.Fatal(err)
	}
	results, err := a.Run(data, O)
	if err != nil {
		glog.Fatal(err)
	}
	printResults(results)

	if *scoresFlag != "" {
		files, err := attack.SaveScores(*scoresFlag, results)
		if err != nil {
			glog.Fatal(err)
		}
		glog.Infof("Saved scores to %v", files)
	}
}
