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

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Z-scores every sample column of R2 across candidates, so that peaks at
// samples with different spread can be compared. Uses the population
// standard deviation. A column without spread becomes 0. NaN cells (failed
// candidates) are left out of the column statistics and stay NaN.
func NormalizeR2(R2 *mat.Dense) *mat.Dense {
	r, c := R2.Dims()
	out := mat.NewDense(r, c, nil)
	col := make([]float64, 0, r)
	for u := 0; u < c; u++ {
		col = col[:0]
		for k := 0; k < r; k++ {
			if v := R2.At(k, u); !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		var mean, std float64
		if len(col) > 0 {
			mean, std = stat.PopMeanStdDev(col, nil)
		}
		for k := 0; k < r; k++ {
			v := R2.At(k, u)
			switch {
			case math.IsNaN(v):
				out.Set(k, u, v)
			case std == 0:
				out.Set(k, u, 0)
			default:
				out.Set(k, u, (v-mean)/std)
			}
		}
	}
	return out
}

// Adjusts R2 for the number of regressors p (not counting the constant)
// fitted on n observations:
//  1 - (1 - R2)(n - 1)/(n - p - 1)
func AdjustedR2(R2 *mat.Dense, n, p int) (*mat.Dense, error) {
	if n-p-1 <= 0 {
		return nil, &gosca.ContractError{Reason: "adjusted R2 needs more observations than regressors"}
	}
	f := float64(n-1) / float64(n-p-1)
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		return 1 - (1-v)*f
	}, R2)
	return &out, nil
}
