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
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gosca"
	"github.com/google/gosca/attack"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestScoresRoundTrip(t *testing.T) {
	S := mat.NewDense(2, 3, []float64{0.5, -0.25, 1, math.NaN(), 0, 0.125})
	var buf bytes.Buffer
	require.NoError(t, attack.WriteScores(&buf, S))

	got, err := attack.ReadScores(&buf)
	require.NoError(t, err)
	r, c := got.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 3, c)
	assert.Equal(t, []float64{0.5, -0.25, 1}, got.RawRowView(0))
	assert.True(t, math.IsNaN(got.At(1, 0)))
	assert.Equal(t, []float64{0, 0.125}, got.RawRowView(1)[1:])

	err = attack.WriteScores(&buf, nil)
	assert.True(t, errors.Is(err, gosca.ErrContract))
}

func TestSaveScores(t *testing.T) {
	dir := t.TempDir()
	results := []*attack.Result{
		{Distinguisher: attack.DistinguisherCPA, Scores: mat.NewDense(1, 2, []float64{1, 2})},
		{Distinguisher: attack.DistinguisherLRA, Scores: mat.NewDense(1, 1, []float64{3})},
	}
	files, err := attack.SaveScores(dir, results)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "cpa.npy"), filepath.Join(dir, "lra.npy")}, files)

	f, err := os.Open(files[1])
	require.NoError(t, err)
	defer f.Close()
	S, err := attack.ReadScores(f)
	require.NoError(t, err)
	assert.Equal(t, 3.0, S.At(0, 0))

	_, err = attack.SaveScores(filepath.Join(dir, "missing"), results)
	assert.Error(t, err)
}
