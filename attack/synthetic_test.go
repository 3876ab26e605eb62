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
	"math/rand"

	"github.com/google/gosca"
	"github.com/google/gosca/attack"
	"github.com/google/gosca/cipher/aes"

	"gonum.org/v1/gonum/mat"
)

var fipsKey = []byte{
	0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6,
	0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c}

const fipsKeyHex = "2b7e151628aed2a6abf7158809cf4f3c"

// Random data bytes and traces of length samples. Sample leakAt carries
// scale * HW(Sbox(data ^ key)) plus Gaussian noise of deviation sigma,
// every other sample is noise of deviation 1.
func syntheticAES(rnd *rand.Rand, n, length, leakAt, key int, scale, sigma float64) ([]int, *mat.Dense) {
	tables := aes.NewTables()
	data := make([]int, n)
	O := mat.NewDense(n, length, nil)
	for i := range data {
		data[i] = rnd.Intn(256)
		row := O.RawRowView(i)
		for u := range row {
			row[u] = rnd.NormFloat64()
		}
		row[leakAt] = scale*attack.HammingWeight(tables.SboxOut(data[i], key)) + sigma*rnd.NormFloat64()
	}
	return data, O
}

// Same as syntheticAES, packed as a capture with 16-byte plaintexts whose
// byte keyByte carries the data value.
func syntheticCapture(rnd *rand.Rand, n, length, leakAt int, key []byte, keyByte int, sigma float64) gosca.Capture {
	tables := aes.NewTables()
	c := make(gosca.Capture, n)
	for i := range c {
		pt := make([]byte, 16)
		rnd.Read(pt)
		samples := make([]float64, length)
		for u := range samples {
			samples[u] = rnd.NormFloat64()
		}
		x := tables.SboxOut(int(pt[keyByte]), int(key[keyByte]))
		samples[leakAt] = 2*attack.HammingWeight(x) + sigma*rnd.NormFloat64()
		c[i] = gosca.Trace{Data: pt, Samples: samples}
	}
	return c
}
