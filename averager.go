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

// Streaming conditional averaging: one running mean trace per data value.
package gosca

import (
	"github.com/golang/glog"
	"gonum.org/v1/gonum/mat"
)

// Keeps a running mean trace and an observation count for every bucket in
// [0, numValues). Memory use doesn't depend on the number of traces added.
// Not safe for concurrent use.
type ConditionalAverager struct {
	means  *mat.Dense
	counts []int
}

func NewConditionalAverager(numValues, traceLength int) (*ConditionalAverager, error) {
	if numValues <= 0 || traceLength <= 0 {
		return nil, contractErrorf("averager needs positive dimensions, got %d x %d", numValues, traceLength)
	}
	glog.V(1).Infof("ConditionalAverager: %d values, trace length %d", numValues, traceLength)
	return &ConditionalAverager{
		means:  mat.NewDense(numValues, traceLength, nil),
		counts: make([]int, numValues),
	}, nil
}

func (a *ConditionalAverager) NumValues() int { return len(a.counts) }

func (a *ConditionalAverager) TraceLength() int {
	_, c := a.means.Dims()
	return c
}

// Number of traces added for bucket.
func (a *ConditionalAverager) Count(bucket int) int {
	if bucket < 0 || bucket >= len(a.counts) {
		return 0
	}
	return a.counts[bucket]
}

// Number of buckets with at least one trace.
func (a *ConditionalAverager) Observed() int {
	var n int
	for _, c := range a.counts {
		if c > 0 {
			n++
		}
	}
	return n
}

// Folds samples into the mean of bucket:
//  mean <- mean + (sample - mean) / (count + 1)
func (a *ConditionalAverager) Add(bucket int, samples []float64) error {
	if bucket < 0 || bucket >= len(a.counts) {
		return &IndexError{"Bucket", bucket, len(a.counts)}
	}
	if len(samples) != a.TraceLength() {
		return contractErrorf("trace has %d samples, averager expects %d", len(samples), a.TraceLength())
	}
	row := a.means.RawRowView(bucket)
	n := float64(a.counts[bucket] + 1)
	for j, s := range samples {
		row[j] += (s - row[j]) / n
	}
	a.counts[bucket]++
	return nil
}

// Returns the observed buckets in ascending order and a copy of their mean
// traces, one row per bucket. Both are nil when nothing was added yet.
// The averager stays live.
func (a *ConditionalAverager) Snapshot() ([]int, *mat.Dense) {
	var buckets []int
	for b, c := range a.counts {
		if c > 0 {
			buckets = append(buckets, b)
		}
	}
	if len(buckets) == 0 {
		return nil, nil
	}
	means := mat.NewDense(len(buckets), a.TraceLength(), nil)
	for i, b := range buckets {
		means.SetRow(i, a.means.RawRowView(b))
	}
	glog.V(2).Infof("Snapshot of %d buckets", len(buckets))
	return buckets, means
}

// Adds traces [start, start+n) of src, bucketed by reduce and cut to w.
// n <= 0 feeds up to the end of src.
func (a *ConditionalAverager) Feed(src TraceSource, reduce Selector, w Window, start, n int) error {
	if n <= 0 {
		n = src.NumTraces() - start
	}
	if start < 0 || n < 0 || start+n > src.NumTraces() {
		return &IndexError{"Trace", start + n - 1, src.NumTraces()}
	}
	for i := start; i < start+n; i++ {
		t, err := src.Trace(i)
		if err != nil {
			return err
		}
		samples, err := w.Apply(t.Samples)
		if err != nil {
			return err
		}
		if err = a.Add(reduce(t.Data), samples); err != nil {
			return err
		}
	}
	glog.V(1).Infof("Averaged %d traces into %d buckets", n, a.Observed())
	return nil
}
