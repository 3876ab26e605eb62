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

// Key-candidate hypotheses, the CPA, LRA and DPA distinguishers, and the ranking
// of their results.
package attack

import (
	"gonum.org/v1/gonum/mat"
)

// Maps a data value and a key candidate to the targeted intermediate, e.g.
// Sbox(pt ^ k).
type IntermediateFunc func(data, candidate int) int

// Computes f(data[i], k) for every candidate k and trace i. The result is
// indexed [candidate][trace].
func Hypotheses(data []int, numCandidates int, f IntermediateFunc) [][]int {
	h := make([][]int, numCandidates)
	for k := range h {
		row := make([]int, len(data))
		for i, d := range data {
			row[i] = f(d, k)
		}
		h[k] = row
	}
	return h
}

// Applies the leakage model to every hypothesis. Returns a
// candidates x traces matrix.
func Predictions(h [][]int, leak LeakageFunc) *mat.Dense {
	if len(h) == 0 || len(h[0]) == 0 {
		return nil
	}
	hl := mat.NewDense(len(h), len(h[0]), nil)
	for k, row := range h {
		dst := hl.RawRowView(k)
		for i, x := range row {
			dst[i] = leak(x)
		}
	}
	return hl
}
