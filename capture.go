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

// In-memory trace collections.
package gosca

import (
	"encoding/binary"

	"gonum.org/v1/gonum/mat"
)

type Trace struct {
	Title   string    `json:"title"`
	Data    []byte    `json:"data"`
	Samples []float64 `json:"samples"`
	// Samples as stored in the container: []int8, []int16, []int32 or
	// []float32. Nil for traces that didn't come from a container.
	Raw interface{} `json:"-"`
}

type Capture []Trace

//go:generate mockgen -destination=mocks/trace_source.go -package=mocks github.com/google/gosca TraceSource
type TraceSource interface {
	NumTraces() int
	Trace(i int) (Trace, error)
}

// Maps the auxiliary data of a trace to a bucket or data value.
type Selector func(data []byte) int

// Selects data byte i.
func ByteSelector(i int) Selector {
	return func(data []byte) int {
		return int(data[i])
	}
}

// Packs data bytes [i, i+8) into a big-endian integer, e.g. a DES block.
func Uint64Selector(i int) Selector {
	return func(data []byte) int {
		return int(binary.BigEndian.Uint64(data[i : i+8]))
	}
}

// Half-open range of samples [Lo, Hi). The zero Window keeps the whole trace.
type Window struct {
	Lo int `yaml:"lo" json:"lo"`
	Hi int `yaml:"hi" json:"hi"`
}

func (w Window) IsZero() bool { return w.Lo == 0 && w.Hi == 0 }

// Length of the window for traces of n samples.
func (w Window) Len(n int) int {
	if w.IsZero() {
		return n
	}
	return w.Hi - w.Lo
}

// Returns a copy of samples[Lo:Hi]. The zero window returns samples as is.
func (w Window) Apply(samples []float64) ([]float64, error) {
	if w.IsZero() {
		return samples, nil
	}
	if w.Lo < 0 || w.Hi <= w.Lo || w.Hi > len(samples) {
		return nil, contractErrorf("window [%d, %d) doesn't fit %d samples", w.Lo, w.Hi, len(samples))
	}
	out := make([]float64, w.Hi-w.Lo)
	copy(out, samples[w.Lo:w.Hi])
	return out, nil
}

func (c Capture) NumTraces() int { return len(c) }

// Returns a copy of trace i.
func (c Capture) Trace(i int) (Trace, error) {
	if i < 0 || i >= len(c) {
		return Trace{}, &IndexError{"Trace", i, len(c)}
	}
	t := c[i]
	t.Data = append([]byte(nil), t.Data...)
	t.Samples = append([]float64(nil), t.Samples...)
	return t, nil
}

// Collects all samples in a single m (#traces) by n (#samples) matrix.
//  _         _
// | -- T1  -- |
// | -- T2  -- |
// | -- ..  -- |
// | -- TM  -- |
// |_         _|
//
func (c Capture) SamplesMatrix() (*mat.Dense, error) {
	if len(c) == 0 {
		return nil, contractErrorf("no traces in capture")
	}
	cols := len(c[0].Samples)
	if cols == 0 {
		return nil, contractErrorf("traces have no samples")
	}
	data := make([]float64, 0, len(c)*cols)
	for i, t := range c {
		if len(t.Samples) != cols {
			return nil, contractErrorf("trace %d has %d samples, expected %d", i, len(t.Samples), cols)
		}
		data = append(data, t.Samples...)
	}
	return mat.NewDense(len(c), cols, data), nil
}

// Reduces the auxiliary data of every trace.
func (c Capture) DataColumn(sel Selector) []int {
	col := make([]int, len(c))
	for i, t := range c {
		col[i] = sel(t.Data)
	}
	return col
}

// Reads n traces of src starting at offset, keeping samples in window w.
// n <= 0 reads up to the end of src. The range must hold at least one trace.
func ReadCapture(src TraceSource, offset, n int, w Window) (Capture, error) {
	count := src.NumTraces()
	if n <= 0 {
		n = count - offset
	}
	if offset < 0 || n <= 0 || offset+n > count {
		return nil, &IndexError{"Trace", offset + n - 1, count}
	}
	c := make(Capture, 0, n)
	for i := offset; i < offset+n; i++ {
		t, err := src.Trace(i)
		if err != nil {
			return nil, err
		}
		if t.Samples, err = w.Apply(t.Samples); err != nil {
			return nil, err
		}
		// Raw always covers the full record, drop it rather than keep a
		// mismatched copy.
		t.Raw = nil
		c = append(c, t)
	}
	return c, nil
}
