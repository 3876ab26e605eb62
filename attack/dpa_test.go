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
)

func TestDPADifferenceOfMeans(t *testing.T) {
	O := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		6, 60,
	})
	values := [][]int{
		{1, 0, 1, 0},
		// Bit 0 set everywhere, nothing to compare against.
		{3, 3, 3, 3},
		{0, 0, 0, 1},
	}
	S, err := attack.DPA(O, values, 0)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{2 - 4, 20 - 40}, S.RawRowView(0), 1e-12)
	for _, v := range S.RawRowView(1) {
		assert.True(t, math.IsNaN(v))
	}
	assert.InDeltaSlice(t, []float64{6 - 2, 60 - 20}, S.RawRowView(2), 1e-12)

	// No candidate's values differ in bit 1.
	S, err = attack.DPA(O, values, 1)
	require.NoError(t, err)
	for k := range values {
		assert.True(t, math.IsNaN(S.At(k, 0)))
	}
}

func TestDPARecoversKey(t *testing.T) {
	const key = 0x3c
	data, O := syntheticAES(rand.New(rand.NewSource(5)), 2000, 6, 2, key, 3, 0.5)
	tables := aes.NewTables()
	h := attack.Hypotheses(data, aes.NumCandidates, tables.SboxOut)

	for _, bit := range []int{0, 7} {
		S, err := attack.DPA(O, h, bit, attack.WithWorkers(3))
		require.NoError(t, err)
		peaks := attack.AbsPeaks(S)
		k, _ := attack.Winner(peaks)
		assert.Equal(t, key, k, "bit %d", bit)
		assert.Equal(t, 2, attack.PeakLocations(S, true)[key])
		// A set bit adds 3 to the leaking sample on average.
		assert.InDelta(t, 3, S.At(key, 2), 0.6)
	}
}

func TestDPAErrors(t *testing.T) {
	O := mat.NewDense(2, 1, []float64{1, 2})
	_, err := attack.DPA(nil, [][]int{{0, 1}}, 0)
	assert.True(t, errors.Is(err, gosca.ErrContract))
	_, err = attack.DPA(O, [][]int{{0, 1, 0}}, 0)
	assert.True(t, errors.Is(err, gosca.ErrContract))
	_, err = attack.DPA(O, [][]int{{0, 1}}, -1)
	assert.True(t, errors.Is(err, gosca.ErrContract))
	_, err = attack.DPA(mat.NewDense(1, 1, nil), [][]int{{0}}, 0)
	assert.True(t, errors.Is(err, gosca.ErrNumerical))
}
