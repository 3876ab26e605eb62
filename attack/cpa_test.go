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

package attack_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/gosca"
	"github.com/google/gosca/attack"
	"github.com/google/gosca/cipher/aes"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func cpaScores(t *testing.T, data []int, O *mat.Dense, opts ...attack.Option) *mat.Dense {
	tables := aes.NewTables()
	h := attack.Hypotheses(data, aes.NumCandidates, tables.SboxOut)
	S, err := attack.CPA(O, attack.Predictions(h, attack.HammingWeight), opts...)
	require.NoError(t, err)
	return S
}

func TestCPANoiseless(t *testing.T) {
	const key = 0x2b
	data, O := syntheticAES(rand.New(rand.NewSource(1)), 300, 10, 5, key, 3, 0)
	S := cpaScores(t, data, O)

	r, c := S.Dims()
	require.Equal(t, 256, r)
	require.Equal(t, 10, c)
	for k := 0; k < r; k++ {
		for _, v := range S.RawRowView(k) {
			require.False(t, math.IsNaN(v))
			require.True(t, v >= -1-1e-6 && v <= 1+1e-6, "corr %f out of range", v)
		}
	}

	peaks := attack.AbsPeaks(S)
	assert.InDelta(t, 1.0, peaks[key], 1e-9)
	assert.Equal(t, 5, attack.PeakLocations(S, true)[key])
	rank, err := attack.Rank(peaks, key)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)
	winner, _ := attack.Winner(peaks)
	assert.Equal(t, key, winner)
}

func TestCPAMatchesPearson(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	data, O := syntheticAES(rnd, 50, 4, 1, 0x10, 1, 1)
	S := cpaScores(t, data, O)

	tables := aes.NewTables()
	for _, k := range []int{0, 0x10, 0xff} {
		x := make([]float64, len(data))
		for i, d := range data {
			x[i] = attack.HammingWeight(tables.SboxOut(d, k))
		}
		for u := 0; u < 4; u++ {
			want := stat.Correlation(x, mat.Col(nil, u, O), nil)
			assert.InDelta(t, want, S.At(k, u), 1e-9)
		}
	}
}

func TestCPANegativeLeakage(t *testing.T) {
	const key = 0x77
	data, O := syntheticAES(rand.New(rand.NewSource(3)), 200, 6, 2, key, -1, 0)
	S := cpaScores(t, data, O)

	assert.InDelta(t, -1.0, S.At(key, 2), 1e-9)
	assert.InDelta(t, 1.0, attack.AbsPeaks(S)[key], 1e-9)
	assert.Less(t, attack.Peaks(S)[key], 1.0)
}

func TestCPAWorkersAgree(t *testing.T) {
	data, O := syntheticAES(rand.New(rand.NewSource(4)), 100, 8, 3, 1, 1, 1)
	sequential := cpaScores(t, data, O, attack.WithWorkers(1))
	parallel := cpaScores(t, data, O, attack.WithWorkers(8))
	assert.True(t, mat.Equal(sequential, parallel))
}

func TestCPAConstantSample(t *testing.T) {
	data, O := syntheticAES(rand.New(rand.NewSource(5)), 100, 3, 0, 1, 1, 0)
	for i := 0; i < 100; i++ {
		O.Set(i, 2, 42)
	}
	S := cpaScores(t, data, O)
	for k := 0; k < 256; k++ {
		assert.True(t, math.IsNaN(S.At(k, 2)))
		assert.False(t, math.IsNaN(S.At(k, 1)))
	}
}

func TestCPAErrors(t *testing.T) {
	O := mat.NewDense(1, 3, []float64{1, 2, 3})
	HL := mat.NewDense(2, 1, []float64{1, 2})
	_, err := attack.CPA(O, HL)
	assert.True(t, errors.Is(err, gosca.ErrNumerical), "%v", err)

	O = mat.NewDense(3, 2, nil)
	HL = mat.NewDense(2, 4, nil)
	_, err = attack.CPA(O, HL)
	assert.True(t, errors.Is(err, gosca.ErrContract), "%v", err)

	_, err = attack.CPA(nil, HL)
	assert.True(t, errors.Is(err, gosca.ErrContract), "%v", err)
}
