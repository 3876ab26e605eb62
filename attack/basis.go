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
	"math/bits"

	"gonum.org/v1/gonum/mat"
)

// Expands an intermediate value into regressor terms for LRA. The last term
// is always the constant 1.
type BasisModel interface {
	Terms() int
	// Writes the Terms() values for x into dst.
	Expand(x int, dst []float64)
}

// One term per bit of x, plus a constant.
type SingleBits struct {
	Width int
}

func (b SingleBits) Terms() int { return b.Width + 1 }

func (b SingleBits) Expand(x int, dst []float64) {
	for i := 0; i < b.Width; i++ {
		dst[i] = float64((x >> uint(i)) & 1)
	}
	dst[b.Width] = 1
}

// Every bit, followed by its products with all higher bits, plus a
// constant.
type SingleBitsAndPairs struct {
	Width int
}

func (b SingleBitsAndPairs) Terms() int { return b.Width + b.Width*(b.Width-1)/2 + 1 }

func (b SingleBitsAndPairs) Expand(x int, dst []float64) {
	n := 0
	for i := 0; i < b.Width; i++ {
		bi := (x >> uint(i)) & 1
		dst[n] = float64(bi)
		n++
		for j := i + 1; j < b.Width; j++ {
			dst[n] = float64(bi & (x >> uint(j)) & 1)
			n++
		}
	}
	dst[n] = 1
}

// Hamming weight of x and a constant.
type HammingWeightBasis struct{}

func (HammingWeightBasis) Terms() int { return 2 }

func (HammingWeightBasis) Expand(x int, dst []float64) {
	dst[0] = HammingWeight(x)
	dst[1] = 1
}

// The parity of x & m for every non-zero mask m of Width bits, plus a
// constant. Spans every function of the Width bits of x.
type AllParities struct {
	Width int
}

func (b AllParities) Terms() int { return 1 << uint(b.Width) }

func (b AllParities) Expand(x int, dst []float64) {
	n := 1 << uint(b.Width)
	for m := 1; m < n; m++ {
		dst[m-1] = float64(bits.OnesCount(uint(x&m)) & 1)
	}
	dst[n-1] = 1
}

// Builds the design matrix with one row of basis terms per value.
func DesignMatrix(values []int, basis BasisModel) *mat.Dense {
	p := basis.Terms()
	m := mat.NewDense(len(values), p, nil)
	for i, x := range values {
		basis.Expand(x, m.RawRowView(i))
	}
	return m
}
