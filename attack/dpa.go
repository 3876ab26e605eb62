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
	"math"

	"github.com/google/gosca"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/mat"
)

// Differential power analysis.
// https://www.paulkocher.com/doc/DifferentialPowerAnalysis.pdf
//
// Splits the traces of O (traces x samples) on bit of every candidate's
// intermediate values (candidates x traces) and returns the candidates x
// samples matrix of mean(traces with the bit set) - mean(traces without).
// A candidate whose split leaves one side empty scores NaN.
func DPA(O *mat.Dense, values [][]int, bit int, opts ...Option) (*mat.Dense, error) {
	if O == nil {
		return nil, &gosca.ContractError{Reason: "DPA needs traces"}
	}
	n, l := O.Dims()
	if bit < 0 {
		return nil, contractError("negative DPA bit %d", bit)
	}
	for _, v := range values {
		if len(v) != n {
			return nil, &gosca.ContractError{Reason: "intermediate values don't match the number of traces"}
		}
	}
	if n < 2 {
		return nil, &gosca.NumericalError{Candidate: -1, Reason: "difference of means needs at least 2 traces"}
	}
	o := newOptions(opts)

	S := mat.NewDense(len(values), l, nil)
	err := forEachCandidate(len(values), o.workers, func(k int) error {
		var n1 int
		for _, v := range values[k] {
			n1 += v >> uint(bit) & 1
		}
		row := S.RawRowView(k)
		if n1 == 0 || n1 == n {
			for u := range row {
				row[u] = math.NaN()
			}
			return nil
		}

		// Weights 1/n1 for the set side and -1/n0 for the other turn the
		// difference of means into a single product.
		w := mat.NewVecDense(n, nil)
		for i, v := range values[k] {
			if v>>uint(bit)&1 == 1 {
				w.SetVec(i, 1/float64(n1))
			} else {
				w.SetVec(i, -1/float64(n-n1))
			}
		}
		diff := mat.NewVecDense(l, row)
		diff.MulVec(O.T(), w)
		glog.V(2).Infof("DPA: candidate 0x%02x done", k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("DPA: %d candidates x %d samples over %d traces, bit %d", len(values), l, n, bit)
	return S, nil
}
