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
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// A configured attack on one key chunk.
type Attack struct {
	Config Config
	Model  *Model

	trueCandidate int
	known         bool
}

func New(c Config) (*Attack, error) {
	m, err := c.Resolve()
	if err != nil {
		return nil, err
	}
	k, known, err := m.TrueCandidate(c.KnownKey)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("Attack: target %s, %d candidates, distinguishers %v, averaging %v",
		m.Name, m.Candidates, c.Distinguishers, c.Averaging)
	return &Attack{Config: c, Model: m, trueCandidate: k, known: known}, nil
}

// The key candidate of the known key, if one was configured.
func (a *Attack) TrueCandidate() (int, bool) {
	return a.trueCandidate, a.known
}

// Outcome of one distinguisher.
type Result struct {
	Distinguisher string `json:"distinguisher"`
	// Rows of the sample matrix attacked: traces, or buckets with averaging.
	Traces int `json:"traces"`
	// Candidates x samples.
	Scores *mat.Dense `json:"-"`
	// LRA coefficients when requested.
	Coefs     []*mat.Dense `json:"-"`
	Peaks     []float64    `json:"-"`
	Locations []int        `json:"-"`
	Winner    Summary      `json:"winner"`
	// Nil without a known key.
	Known *Summary `json:"known,omitempty"`
	// LRA candidates that failed under SkipSingular.
	Failed []int `json:"failed,omitempty"`
	// Non-fatal errors: skipped candidates, an unrankable known candidate.
	Err error `json:"-"`
}

// Range of traces the config selects from a source of numTraces.
func (a *Attack) traceRange(numTraces int) (int, int, error) {
	start, n := a.Config.Offset, a.Config.Traces
	if n == 0 {
		n = numTraces - start
	}
	if start < 0 || n <= 0 || start+n > numTraces {
		return 0, 0, &gosca.IndexError{What: "Trace", Index: start + n - 1, Limit: numTraces}
	}
	return start, n, nil
}

// Collects data values and windowed samples, either one row per trace or
// one mean row per observed data value.
type accumulator struct {
	model  *Model
	window gosca.Window
	length int

	avg     *gosca.ConditionalAverager
	capture gosca.Capture
}

// Sizes an accumulator after trace first of src.
func (a *Attack) newAccumulator(src gosca.TraceSource, first int) (*accumulator, error) {
	t, err := src.Trace(first)
	if err != nil {
		return nil, err
	}
	if len(t.Data) < a.Model.DataBytes {
		return nil, contractError("%s needs %d data bytes, traces have %d",
			a.Model.Name, a.Model.DataBytes, len(t.Data))
	}
	samples, err := a.Config.Samples.Apply(t.Samples)
	if err != nil {
		return nil, err
	}
	acc := &accumulator{model: a.Model, window: a.Config.Samples, length: len(samples)}
	if a.Config.Averaging {
		if acc.avg, err = gosca.NewConditionalAverager(a.Model.Buckets, acc.length); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func (acc *accumulator) feed(src gosca.TraceSource, start, n int) error {
	if acc.avg != nil {
		return acc.avg.Feed(src, acc.model.Reduce, acc.window, start, n)
	}
	c, err := gosca.ReadCapture(src, start, n, acc.window)
	if err != nil {
		return err
	}
	acc.capture = append(acc.capture, c...)
	return nil
}

// Data values and the matching sample rows fed so far. Both are nil before
// anything was fed.
func (acc *accumulator) snapshot() ([]int, *mat.Dense, error) {
	if acc.avg != nil {
		data, O := acc.avg.Snapshot()
		return data, O, nil
	}
	if len(acc.capture) == 0 {
		return nil, nil, nil
	}
	O, err := acc.capture.SamplesMatrix()
	if err != nil {
		return nil, nil, err
	}
	return acc.capture.DataColumn(acc.model.Reduce), O, nil
}

// Reads the configured traces from src. Returns the data values and the
// sample matrix to attack, averaged per data value if configured.
func (a *Attack) Load(src gosca.TraceSource) ([]int, *mat.Dense, error) {
	start, n, err := a.traceRange(src.NumTraces())
	if err != nil {
		return nil, nil, err
	}
	acc, err := a.newAccumulator(src, start)
	if err != nil {
		return nil, nil, err
	}
	if err = acc.feed(src, start, n); err != nil {
		return nil, nil, err
	}
	data, O, err := acc.snapshot()
	if err != nil {
		return nil, nil, err
	}
	glog.V(1).Infof("Loaded %d traces into %d rows of %d samples", n, len(data), acc.length)
	return data, O, nil
}

// Runs the configured distinguishers on data values and their sample rows
// and ranks the candidates.
func (a *Attack) Run(data []int, O *mat.Dense) ([]*Result, error) {
	if O == nil {
		return nil, &gosca.NumericalError{Candidate: -1, Reason: "no traces to attack"}
	}
	if r, _ := O.Dims(); r != len(data) {
		return nil, contractError("%d data values for %d sample rows", len(data), r)
	}
	h := Hypotheses(data, a.Model.Candidates, a.Model.Intermediate)
	opts := a.Config.Options()

	var results []*Result
	for _, d := range a.Config.Distinguishers {
		r := &Result{Distinguisher: d, Traces: len(data)}
		switch d {
		case DistinguisherCPA:
			S, err := CPA(O, Predictions(h, a.Model.Leakage), opts...)
			if err != nil {
				return nil, errors.Wrap(err, "CPA")
			}
			r.Scores = S
		case DistinguisherDPA:
			S, err := DPA(O, h, a.Config.DPABit, opts...)
			if err != nil {
				return nil, errors.Wrap(err, "DPA")
			}
			r.Scores = S
		case DistinguisherLRA:
			res, err := LRA(O, h, a.Model.Basis, opts...)
			if res == nil {
				return nil, errors.Wrap(err, "LRA")
			}
			r.Err = err
			r.Scores, r.Coefs, r.Failed = res.R2, res.Coefs, res.Failed
			if a.Config.AdjustedR2 {
				// Terms include the constant.
				if r.Scores, err = AdjustedR2(res.R2, len(data), a.Model.Basis.Terms()-1); err != nil {
					return nil, &gosca.NumericalError{Candidate: -1, Reason: err.Error()}
				}
			}
			if a.Config.NormalizeR2 {
				r.Scores = NormalizeR2(r.Scores)
			}
		}
		a.rank(r)
		glog.V(1).Infof("%s: winner %v", d, r.Winner)
		results = append(results, r)
	}
	return results, nil
}

func (a *Attack) rank(r *Result) {
	r.Peaks, r.Locations = rowPeaks(r.Scores, a.Config.Peak == PeakAbs)
	k, peak := Winner(r.Peaks)
	r.Winner = Summary{Candidate: k, Peak: peak, Location: -1}
	if k >= 0 {
		r.Winner, _ = Summarize(r.Peaks, r.Locations, k)
	}
	if !a.known {
		return
	}
	s, err := Summarize(r.Peaks, r.Locations, a.trueCandidate)
	if err != nil {
		r.Err = multierror.Append(r.Err, err)
		return
	}
	r.Known = &s
}
