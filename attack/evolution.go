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

package attack

import (
	"github.com/google/gosca"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Outcome of one distinguisher after a number of traces.
type EvolutionPoint struct {
	Traces        int     `json:"traces"`
	Distinguisher string  `json:"distinguisher"`
	Winner        Summary `json:"winner"`
	// Rank of the known candidate, 0 when unknown.
	Rank  int    `json:"rank"`
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

type EvolutionConfig struct {
	// Traces fed between two evaluations, 0 evaluates once at the end.
	Step int
	// Traces fed before the first evaluation.
	WarmUp int
	// Called after every evaluation, if set.
	Progress func(EvolutionPoint)
}

// Streams the configured traces in index order and reruns the
// distinguishers every cfg.Step traces. Averaging, if configured, carries
// over between steps; the distinguishers start from scratch every time.
// Numerical failures (too few traces, singular fits) are recorded in the
// points and don't stop the evolution.
func (a *Attack) Evolve(src gosca.TraceSource, cfg EvolutionConfig) ([]EvolutionPoint, error) {
	start, total, err := a.traceRange(src.NumTraces())
	if err != nil {
		return nil, err
	}
	acc, err := a.newAccumulator(src, start)
	if err != nil {
		return nil, err
	}
	step := cfg.Step
	if step <= 0 {
		step = total
	}

	var points []EvolutionPoint
	for fed := 0; fed < total; {
		n := step
		if fed+n > total {
			n = total - fed
		}
		if err := acc.feed(src, start+fed, n); err != nil {
			return points, err
		}
		fed += n
		if fed < cfg.WarmUp && fed < total {
			continue
		}

		data, O, err := acc.snapshot()
		if err != nil {
			return points, err
		}
		results, err := a.Run(data, O)
		if err != nil {
			if !errors.Is(err, gosca.ErrNumerical) {
				return points, err
			}
			for _, d := range a.Config.Distinguishers {
				points = a.report(points, cfg, EvolutionPoint{
					Traces: fed, Distinguisher: d, Winner: Summary{Candidate: -1, Location: -1}, Err: err})
			}
			continue
		}
		for _, r := range results {
			p := EvolutionPoint{Traces: fed, Distinguisher: r.Distinguisher, Winner: r.Winner, Err: r.Err}
			if r.Known != nil {
				p.Rank = r.Known.Rank
			}
			points = a.report(points, cfg, p)
		}
	}
	return points, nil
}

func (a *Attack) report(points []EvolutionPoint, cfg EvolutionConfig, p EvolutionPoint) []EvolutionPoint {
	if p.Err != nil {
		p.Error = p.Err.Error()
	}
	glog.V(1).Infof("[%d traces] %s: winner %v, rank %d", p.Traces, p.Distinguisher, p.Winner, p.Rank)
	if cfg.Progress != nil {
		cfg.Progress(p)
	}
	return append(points, p)
}
