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
	"math/bits"
	"math/rand"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/gosca"
	"github.com/google/gosca/attack"
	"github.com/google/gosca/cipher/des"
	"github.com/google/gosca/mocks"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func aesAttack(t *testing.T, averaging bool, distinguishers ...string) *attack.Attack {
	c := attack.DefaultConfig()
	c.Byte = 5
	c.Samples = gosca.Window{Lo: 2, Hi: 12}
	c.Distinguishers = distinguishers
	c.KnownKey = fipsKeyHex
	c.Averaging = averaging
	a, err := attack.New(c)
	require.NoError(t, err)
	k, ok := a.TrueCandidate()
	require.True(t, ok)
	require.Equal(t, 0xae, k)
	return a
}

func TestAttackRecoversKeyByte(t *testing.T) {
	capture := syntheticCapture(rand.New(rand.NewSource(20)), 3000, 16, 9, fipsKey, 5, 0.5)
	for _, averaging := range []bool{false, true} {
		a := aesAttack(t, averaging, attack.DistinguisherCPA, attack.DistinguisherLRA, attack.DistinguisherDPA)
		data, O, err := a.Load(capture)
		require.NoError(t, err)
		rows, cols := O.Dims()
		require.Equal(t, 10, cols)
		require.Equal(t, len(data), rows)
		if averaging {
			// One row per observed plaintext byte.
			assert.LessOrEqual(t, rows, 256)
		} else {
			assert.Equal(t, 3000, rows)
		}

		results, err := a.Run(data, O)
		require.NoError(t, err)
		require.Len(t, results, 3)
		for _, r := range results {
			assert.NoError(t, r.Err)
			assert.Equal(t, 0xae, r.Winner.Candidate, "%s averaging=%v", r.Distinguisher, averaging)
			assert.Equal(t, 7, r.Winner.Location)
			require.NotNil(t, r.Known)
			assert.Equal(t, 1, r.Known.Rank)
		}
	}
}

func TestAttackTraceRange(t *testing.T) {
	capture := syntheticCapture(rand.New(rand.NewSource(21)), 10, 4, 0, fipsKey, 0, 0)
	c := attack.DefaultConfig()
	c.Offset, c.Traces = 5, 6
	a, err := attack.New(c)
	require.NoError(t, err)
	_, _, err = a.Load(capture)
	assert.True(t, errors.Is(err, gosca.ErrIndex))

	c.Traces = 5
	a, err = attack.New(c)
	require.NoError(t, err)
	data, O, err := a.Load(capture)
	require.NoError(t, err)
	assert.Len(t, data, 5)
	assert.Equal(t, capture[5].Samples, O.RawRowView(0))

	c.Byte = 16
	a, err = attack.New(c)
	require.NoError(t, err)
	_, _, err = a.Load(capture)
	assert.True(t, errors.Is(err, gosca.ErrContract))
}

func TestAttackRunErrors(t *testing.T) {
	a := aesAttack(t, false, attack.DistinguisherCPA, attack.DistinguisherLRA)
	_, err := a.Run(nil, nil)
	assert.True(t, errors.Is(err, gosca.ErrNumerical))

	capture := syntheticCapture(rand.New(rand.NewSource(22)), 1, 16, 9, fipsKey, 5, 0)
	data, O, err := a.Load(capture)
	require.NoError(t, err)
	_, err = a.Run(data, O)
	assert.True(t, errors.Is(err, gosca.ErrNumerical))
	_, err = a.Run(append(data, 1), O)
	assert.True(t, errors.Is(err, gosca.ErrContract))
}

func TestAttackReadError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	readErr := errors.New("short read")
	src := mocks.NewMockTraceSource(ctrl)
	src.EXPECT().NumTraces().Return(3).AnyTimes()
	src.EXPECT().Trace(0).Return(gosca.Trace{Data: make([]byte, 16), Samples: make([]float64, 4)}, nil).Times(2)
	src.EXPECT().Trace(1).Return(gosca.Trace{}, readErr)

	c := attack.DefaultConfig()
	a, err := attack.New(c)
	require.NoError(t, err)
	_, _, err = a.Load(src)
	assert.Equal(t, readErr, err)
}

func TestAttackAdjustedR2(t *testing.T) {
	capture := syntheticCapture(rand.New(rand.NewSource(24)), 300, 16, 9, fipsKey, 5, 1)
	a := aesAttack(t, false, attack.DistinguisherLRA)
	data, O, err := a.Load(capture)
	require.NoError(t, err)
	plain, err := a.Run(data, O)
	require.NoError(t, err)

	a.Config.AdjustedR2 = true
	adjusted, err := a.Run(data, O)
	require.NoError(t, err)
	// Single bits: 8 regressors besides the constant.
	f := float64(300-1) / float64(300-8-1)
	for k := 0; k < 256; k += 51 {
		for u := 0; u < 10; u++ {
			assert.InDelta(t, 1-(1-plain[0].Scores.At(k, u))*f, adjusted[0].Scores.At(k, u), 1e-12)
		}
	}
	assert.Equal(t, 0xae, adjusted[0].Winner.Candidate)

	_, err = a.Run(data[:9], O.Slice(0, 9, 0, 10).(*mat.Dense))
	assert.True(t, errors.Is(err, gosca.ErrNumerical), "got %v", err)
}

func TestAttackRaggedTraces(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := mocks.NewMockTraceSource(ctrl)
	src.EXPECT().NumTraces().Return(2).AnyTimes()
	src.EXPECT().Trace(0).Return(gosca.Trace{Data: make([]byte, 16), Samples: make([]float64, 4)}, nil).Times(2)
	src.EXPECT().Trace(1).Return(gosca.Trace{Data: make([]byte, 16), Samples: make([]float64, 3)}, nil)

	a, err := attack.New(attack.DefaultConfig())
	require.NoError(t, err)
	_, _, err = a.Load(src)
	assert.True(t, errors.Is(err, gosca.ErrContract), "got %v", err)
}

func TestEvolve(t *testing.T) {
	capture := syntheticCapture(rand.New(rand.NewSource(23)), 400, 16, 9, fipsKey, 5, 1)
	a := aesAttack(t, true, attack.DistinguisherCPA, attack.DistinguisherLRA)

	var progress []attack.EvolutionPoint
	points, err := a.Evolve(capture, attack.EvolutionConfig{
		Step:     100,
		WarmUp:   150,
		Progress: func(p attack.EvolutionPoint) { progress = append(progress, p) },
	})
	require.NoError(t, err)
	assert.Equal(t, points, progress)

	// 200, 300 and 400 traces, two distinguishers each.
	require.Len(t, points, 6)
	for i, p := range points {
		assert.Equal(t, 200+100*(i/2), p.Traces)
	}
	last := points[len(points)-2:]
	for _, p := range last {
		assert.NoError(t, p.Err)
		assert.Equal(t, 1, p.Rank, p.Distinguisher)
		assert.Equal(t, 0xae, p.Winner.Candidate)
	}
}

func TestEvolveRecordsNumericalErrors(t *testing.T) {
	capture := syntheticCapture(rand.New(rand.NewSource(24)), 3, 16, 9, fipsKey, 5, 1)
	c := attack.DefaultConfig()
	c.Byte = 5
	a, err := attack.New(c)
	require.NoError(t, err)

	points, err := a.Evolve(capture, attack.EvolutionConfig{Step: 1})
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.True(t, errors.Is(points[0].Err, gosca.ErrNumerical))
	assert.NotEmpty(t, points[0].Error)
	assert.Equal(t, -1, points[0].Winner.Candidate)
	assert.NoError(t, points[2].Err)
	assert.Equal(t, 3, points[2].Traces)
}

// Noiseless DES traces: sample 1 leaks the Hamming weight of the round
// XOR value of S-box sbox.
func TestAttackDES(t *testing.T) {
	const sbox = 2
	key := []byte{0x8a, 0x74, 0x00, 0xa0, 0x32, 0x30, 0xda, 0x28}
	chunk, err := des.FirstRoundKeyChunk(key, sbox)
	require.NoError(t, err)
	tables := des.NewTables()
	target := tables.RoundXOR(sbox)

	rnd := rand.New(rand.NewSource(25))
	capture := make(gosca.Capture, 600)
	for i := range capture {
		block := rnd.Uint64()
		data := make([]byte, 8)
		for j := range data {
			data[j] = byte(block >> uint(56-8*j))
		}
		x := target(des.RoundXORValue(block, sbox), chunk)
		capture[i] = gosca.Trace{Data: data, Samples: []float64{rnd.NormFloat64(), float64(bits.OnesCount(uint(x)))}}
	}

	for _, averaging := range []bool{false, true} {
		c := attack.DefaultConfig()
		c.Target = attack.TargetDESRoundXOR
		c.Sbox = sbox
		c.Averaging = averaging
		c.Distinguishers = []string{attack.DistinguisherCPA, attack.DistinguisherLRA}
		c.KnownKey = "8a7400a03230da28"
		a, err := attack.New(c)
		require.NoError(t, err)

		data, O, err := a.Load(capture)
		require.NoError(t, err)
		results, err := a.Run(data, O)
		require.NoError(t, err)
		for _, r := range results {
			assert.Equal(t, chunk, r.Winner.Candidate, "%s averaging=%v", r.Distinguisher, averaging)
			assert.Equal(t, 1, r.Winner.Location)
			require.NotNil(t, r.Known)
			assert.Equal(t, 1, r.Known.Rank)
		}
	}
}
