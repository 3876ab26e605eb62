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

package aes_test

import (
	"encoding/hex"
	"testing"

	"github.com/google/gosca/cipher/aes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestInverseSbox(t *testing.T) {
	tables := aes.NewTables()
	assert.Equal(t, byte(0xed), tables.Sbox(0x53))
	for x := 0; x < 256; x++ {
		require.Equal(t, byte(x), tables.InvSbox(tables.Sbox(byte(x))))
	}
}

func TestIntermediates(t *testing.T) {
	tables := aes.NewTables()
	assert.Equal(t, 0xed, tables.SboxOut(0x50, 0x03))
	assert.Equal(t, 0x53^0xed, tables.SboxInXorOut(0x50, 0x03))
	assert.Equal(t, 0x53, tables.InvSboxOut(0xe0, 0x0d))
	assert.Equal(t, 0xed^0x53, tables.InvSboxInXorOut(0xe0, 0x0d))
	// Only the low byte of data ^ k takes part.
	assert.Equal(t, tables.SboxOut(0x50, 0x03), tables.SboxOut(0x150, 0x03))
}

func TestExpandKey(t *testing.T) {
	tables := aes.NewTables()
	key := mustDecode(t, "2b7e151628aed2a6abf7158809cf4f3c")
	rk, err := tables.ExpandKey(key)
	require.NoError(t, err)
	assert.Equal(t, "2b7e151628aed2a6abf7158809cf4f3c", hex.EncodeToString(rk[0][:]))
	assert.Equal(t, "a0fafe1788542cb123a339392a6c7605", hex.EncodeToString(rk[1][:]))
	assert.Equal(t, "d014f9a8c9ee2589e13f0cc8b6630ca6", hex.EncodeToString(rk[10][:]))

	_, err = tables.ExpandKey(key[:15])
	assert.Error(t, err)
}

func TestRoundKeyByte(t *testing.T) {
	tables := aes.NewTables()
	key := mustDecode(t, "2b7e151628aed2a6abf7158809cf4f3c")

	b, err := tables.RoundKeyByte(key, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 0x7e, b)

	b, err = tables.RoundKeyByte(key, 1, true)
	require.NoError(t, err)
	assert.Equal(t, 0x14, b)

	_, err = tables.RoundKeyByte(key, 16, false)
	assert.Error(t, err)
}
