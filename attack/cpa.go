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
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Subtracts the column means from a copy of O. Also returns the sum of
// squares of every centered column.
func centerColumns(O mat.Matrix) (*mat.Dense, []float64) {
	n, l := O.Dims()
	D := mat.DenseCopyOf(O)
	means := make([]float64, l)
	for i := 0; i < n; i++ {
		floats.Add(means, D.RawRowView(i))
	}
	floats.Scale(1/float64(n), means)

	ss := make([]float64, l)
	for i := 0; i < n; i++ {
		row := D.RawRowView(i)
		floats.Sub(row, means)
		for u, v := range row {
			ss[u] += v * v
		}
	}
	return D, ss
}

// Correlation power analysis.
//
// O holds one trace per row (traces x samples), HL one leakage prediction
// per trace for every candidate (candidates x traces). Returns the
// candidates x samples matrix of Pearson correlation coefficients:
//  corr[k][u] = sum((O[:,u]-mean)(HL[k]-mean)) / sqrt(sum((O[:,u]-mean)^2) sum((HL[k]-mean)^2))
// A sample or a prediction without variance has no correlation and scores
// NaN. The sign is kept, see AbsPeaks.
func CPA(O, HL *mat.Dense, opts ...Option) (*mat.Dense, error) {
	if O == nil || HL == nil {
		return nil, &gosca.ContractError{Reason: "CPA needs traces and predictions"}
	}
	n, l := O.Dims()
	numCandidates, m := HL.Dims()
	if m != n {
		return nil, &gosca.ContractError{Reason: "predictions don't match the number of traces"}
	}
	if n < 2 {
		return nil, &gosca.NumericalError{Candidate: -1, Reason: "correlation needs at least 2 traces"}
	}
	o := newOptions(opts)

	DO, ssO := centerColumns(O)
	S := mat.NewDense(numCandidates, l, nil)
	err := forEachCandidate(numCandidates, o.workers, func(k int) error {
		dp := append([]float64(nil), HL.RawRowView(k)...)
		floats.AddConst(-floats.Sum(dp)/float64(n), dp)
		ssP := floats.Dot(dp, dp)

		var cov mat.VecDense
		cov.MulVec(DO.T(), mat.NewVecDense(n, dp))
		row := S.RawRowView(k)
		for u := range row {
			den := math.Sqrt(ssO[u] * ssP)
			if den == 0 {
				row[u] = math.NaN()
				continue
			}
			row[u] = cov.AtVec(u) / den
		}
		glog.V(2).Infof("CPA: candidate 0x%02x done", k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("CPA: %d candidates x %d samples over %d traces", numCandidates, l, n)
	return S, nil
}
