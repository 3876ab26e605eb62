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
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/gosca"

	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"
	"gonum.org/v1/gonum/mat"
)

type LRAResult struct {
	// Coefficient of determination, candidates x samples.
	R2 *mat.Dense
	// Fitted basis weights per candidate, terms x samples. Only kept with
	// WithCoefficients(true); nil rows for failed candidates.
	Coefs []*mat.Dense
	// Candidates skipped under SkipSingular, ascending.
	Failed []int
}

// Linear regression analysis.
//
// For every candidate k the intermediates values[k] (one per row of O) are
// expanded into the design matrix M with basis, and every sample column of
// O is fitted by least squares:
//  P = (M^T M)^-1 M^T,  B = P O,  E = M B
//  R2[k][u] = 1 - sum((E[:,u] - O[:,u])^2) / sum((O[:,u] - mean)^2)
// A sample without variance scores NaN.
//
// When M^T M can't be inverted the candidate fails with a NumericalError.
// Under AbortOnSingular that error is returned alone. Under SkipSingular
// the candidate's row is NaN, it's listed in Failed, and the result is
// returned together with the accumulated errors.
func LRA(O *mat.Dense, values [][]int, basis BasisModel, opts ...Option) (*LRAResult, error) {
	if O == nil || basis == nil {
		return nil, &gosca.ContractError{Reason: "LRA needs traces and a basis"}
	}
	n, l := O.Dims()
	for k, v := range values {
		if len(v) != n {
			return nil, &gosca.ContractError{Reason: fmt.Sprintf(
				"candidate %d has %d intermediates for %d traces", k, len(v), n)}
		}
	}
	if len(values) == 0 {
		return nil, &gosca.ContractError{Reason: "LRA needs at least one candidate"}
	}
	if n < 2 {
		return nil, &gosca.NumericalError{Candidate: -1, Reason: "regression needs at least 2 traces"}
	}
	o := newOptions(opts)

	_, ssTot := centerColumns(O)
	res := &LRAResult{R2: mat.NewDense(len(values), l, nil)}
	if o.coefficients {
		res.Coefs = make([]*mat.Dense, len(values))
	}

	var mu sync.Mutex
	var errs *multierror.Error
	err := forEachCandidate(len(values), o.workers, func(k int) error {
		B, ssReg, err := fit(O, DesignMatrix(values[k], basis))
		row := res.R2.RawRowView(k)
		if err != nil {
			nerr := &gosca.NumericalError{Candidate: k, Reason: err.Error()}
			if o.singular == AbortOnSingular {
				return nerr
			}
			glog.Warningf("LRA: skipping candidate 0x%02x: %v", k, err)
			for u := range row {
				row[u] = math.NaN()
			}
			mu.Lock()
			errs = multierror.Append(errs, nerr)
			res.Failed = append(res.Failed, k)
			mu.Unlock()
			return nil
		}
		for u := range row {
			if ssTot[u] == 0 {
				row[u] = math.NaN()
				continue
			}
			row[u] = 1 - ssReg[u]/ssTot[u]
		}
		if o.coefficients {
			res.Coefs[k] = B
		}
		glog.V(2).Infof("LRA: candidate 0x%02x done", k)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Ints(res.Failed)
	glog.V(1).Infof("LRA: %d candidates x %d samples over %d traces, %d terms, %d failed",
		len(values), l, n, basis.Terms(), len(res.Failed))
	return res, errs.ErrorOrNil()
}

// Least-squares fit of every column of O on M. Returns the coefficients
// (terms x samples) and the residual sum of squares per sample.
func fit(O, M *mat.Dense) (*mat.Dense, []float64, error) {
	var MtM, inv mat.Dense
	MtM.Mul(M.T(), M)
	if err := inv.Inverse(&MtM); err != nil {
		return nil, nil, err
	}
	var P, B, E mat.Dense
	P.Mul(&inv, M.T())
	B.Mul(&P, O)
	E.Mul(M, &B)

	n, l := O.Dims()
	ss := make([]float64, l)
	for i := 0; i < n; i++ {
		e, obs := E.RawRowView(i), O.RawRowView(i)
		for u := range ss {
			d := e[u] - obs[u]
			ss[u] += d * d
		}
	}
	return &B, ss, nil
}
