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

// DES first-round helpers for side-channel attacks on the round-in XOR
// round-out value.
//
// Bit positions in the permutation tables are 0-based and count from the
// most significant bit, as in FIPS 46-3.
package des

import (
	"github.com/pkg/errors"
)

const (
	// Key candidates per S-box: one 6-bit round key chunk.
	NumCandidates = 64
	// Distinct values of RoundXORValue: 6 expansion bits and 4 XOR bits.
	NumBuckets = 1 << 10
	// Width of the round-XOR intermediate.
	IntermediateWidth = 4
)

var (
	InitialPermutation = [64]int{
		57, 49, 41, 33, 25, 17, 9, 1,
		59, 51, 43, 35, 27, 19, 11, 3,
		61, 53, 45, 37, 29, 21, 13, 5,
		63, 55, 47, 39, 31, 23, 15, 7,
		56, 48, 40, 32, 24, 16, 8, 0,
		58, 50, 42, 34, 26, 18, 10, 2,
		60, 52, 44, 36, 28, 20, 12, 4,
		62, 54, 46, 38, 30, 22, 14, 6}

	Expansion = [48]int{
		31, 0, 1, 2, 3, 4,
		3, 4, 5, 6, 7, 8,
		7, 8, 9, 10, 11, 12,
		11, 12, 13, 14, 15, 16,
		15, 16, 17, 18, 19, 20,
		19, 20, 21, 22, 23, 24,
		23, 24, 25, 26, 27, 28,
		27, 28, 29, 30, 31, 0}

	Permutation = [32]int{
		15, 6, 19, 20, 28, 11, 27, 16,
		0, 14, 22, 25, 4, 17, 30, 9,
		1, 7, 23, 13, 31, 26, 2, 8,
		18, 12, 29, 5, 21, 10, 3, 24}

	PermutedChoice1 = [56]int{
		56, 48, 40, 32, 24, 16, 8,
		0, 57, 49, 41, 33, 25, 17,
		9, 1, 58, 50, 42, 34, 26,
		18, 10, 2, 59, 51, 43, 35,
		62, 54, 46, 38, 30, 22, 14,
		6, 61, 53, 45, 37, 29, 21,
		13, 5, 60, 52, 44, 36, 28,
		20, 12, 4, 27, 19, 11, 3}

	PermutedChoice2 = [48]int{
		13, 16, 10, 23, 0, 4,
		2, 27, 14, 5, 20, 9,
		22, 18, 11, 3, 25, 7,
		15, 6, 26, 19, 12, 1,
		40, 51, 30, 36, 46, 54,
		29, 39, 50, 44, 32, 47,
		43, 48, 38, 55, 33, 52,
		45, 41, 49, 35, 28, 31}

	keyShifts = [16]uint{1, 1, 2, 2, 2, 2, 2, 2, 1, 2, 2, 2, 2, 2, 2, 1}

	sboxes = [8][64]byte{
		{
			14, 4, 13, 1, 2, 15, 11, 8, 3, 10, 6, 12, 5, 9, 0, 7,
			0, 15, 7, 4, 14, 2, 13, 1, 10, 6, 12, 11, 9, 5, 3, 8,
			4, 1, 14, 8, 13, 6, 2, 11, 15, 12, 9, 7, 3, 10, 5, 0,
			15, 12, 8, 2, 4, 9, 1, 7, 5, 11, 3, 14, 10, 0, 6, 13},
		{
			15, 1, 8, 14, 6, 11, 3, 4, 9, 7, 2, 13, 12, 0, 5, 10,
			3, 13, 4, 7, 15, 2, 8, 14, 12, 0, 1, 10, 6, 9, 11, 5,
			0, 14, 7, 11, 10, 4, 13, 1, 5, 8, 12, 6, 9, 3, 2, 15,
			13, 8, 10, 1, 3, 15, 4, 2, 11, 6, 7, 12, 0, 5, 14, 9},
		{
			10, 0, 9, 14, 6, 3, 15, 5, 1, 13, 12, 7, 11, 4, 2, 8,
			13, 7, 0, 9, 3, 4, 6, 10, 2, 8, 5, 14, 12, 11, 15, 1,
			13, 6, 4, 9, 8, 15, 3, 0, 11, 1, 2, 12, 5, 10, 14, 7,
			1, 10, 13, 0, 6, 9, 8, 7, 4, 15, 14, 3, 11, 5, 2, 12},
		{
			7, 13, 14, 3, 0, 6, 9, 10, 1, 2, 8, 5, 11, 12, 4, 15,
			13, 8, 11, 5, 6, 15, 0, 3, 4, 7, 2, 12, 1, 10, 14, 9,
			10, 6, 9, 0, 12, 11, 7, 13, 15, 1, 3, 14, 5, 2, 8, 4,
			3, 15, 0, 6, 10, 1, 13, 8, 9, 4, 5, 11, 12, 7, 2, 14},
		{
			2, 12, 4, 1, 7, 10, 11, 6, 8, 5, 3, 15, 13, 0, 14, 9,
			14, 11, 2, 12, 4, 7, 13, 1, 5, 0, 15, 10, 3, 9, 8, 6,
			4, 2, 1, 11, 10, 13, 7, 8, 15, 9, 12, 5, 6, 3, 0, 14,
			11, 8, 12, 7, 1, 14, 2, 13, 6, 15, 0, 9, 10, 4, 5, 3},
		{
			12, 1, 10, 15, 9, 2, 6, 8, 0, 13, 3, 4, 14, 7, 5, 11,
			10, 15, 4, 2, 7, 12, 9, 5, 6, 1, 13, 14, 0, 11, 3, 8,
			9, 14, 15, 5, 2, 8, 12, 3, 7, 0, 4, 10, 1, 13, 11, 6,
			4, 3, 2, 12, 9, 5, 15, 10, 11, 14, 1, 7, 6, 0, 8, 13},
		{
			4, 11, 2, 14, 15, 0, 8, 13, 3, 12, 9, 7, 5, 10, 6, 1,
			13, 0, 11, 7, 4, 9, 1, 10, 14, 3, 5, 12, 2, 15, 8, 6,
			1, 4, 11, 13, 12, 3, 7, 14, 10, 15, 6, 8, 0, 5, 9, 2,
			6, 11, 13, 8, 1, 4, 10, 7, 9, 5, 0, 15, 14, 2, 3, 12},
		{
			13, 2, 8, 4, 6, 15, 11, 1, 10, 9, 3, 14, 5, 0, 12, 7,
			1, 15, 13, 8, 10, 3, 7, 4, 12, 5, 6, 11, 0, 14, 9, 2,
			7, 11, 4, 1, 9, 12, 14, 2, 0, 6, 10, 13, 15, 3, 5, 8,
			2, 1, 14, 7, 4, 10, 8, 13, 15, 12, 9, 0, 3, 5, 6, 11},
	}
)

// Read-only S-box tables. Obtain one with NewTables and share it freely.
type Tables struct {
	sboxes [8][64]byte
}

func NewTables() *Tables {
	return &Tables{sboxes: sboxes}
}

// Looks up the 6-bit input x in S-box n. The outer bits of x select the
// row, the inner four the column.
func (t *Tables) Sbox(n, x int) int {
	row := (x>>4)&2 | x&1
	col := (x >> 1) & 0xf
	return int(t.sboxes[n][row<<4|col])
}

// Gathers bits of the inWidth-bit value x in the order given by perm.
func PermuteBits(x uint64, perm []int, inWidth int) uint64 {
	var r uint64
	for _, p := range perm {
		r = r<<1 | (x>>uint(inWidth-1-p))&1
	}
	return r
}

// The 6 expansion bits of the right half r that feed S-box n.
func ExpandedChunk(n int, r uint32) int {
	switch n {
	case 0:
		return int((r>>27 | r<<5) & 0x3f)
	case 7:
		return int((r<<1 | r>>31) & 0x3f)
	}
	return int(r>>uint(27-4*n)) & 0x3f
}

// The 4 bits of P^-1(x) that line up with the output of S-box n.
func InversePermutedChunk(n int, x uint32) int {
	var v uint32
	switch n {
	case 0:
		v = (x>>20)&8 | (x>>13)&4 | (x>>8)&2 | (x>>1)&1
	case 1:
		v = (x>>16)&8 | (x>>2)&4 | (x>>29)&2 | (x>>14)&1
	case 2:
		v = (x>>5)&8 | (x>>14)&4 | (x>>1)&2 | (x>>26)&1
	case 3:
		v = (x>>3)&8 | (x>>10)&4 | (x>>21)&2 | (x>>31)&1
	case 4:
		v = (x>>21)&8 | (x>>16)&4 | (x>>6)&2 | (x>>29)&1
	case 5:
		v = (x>>25)&8 | (x>>1)&4 | (x>>20)&2 | (x>>13)&1
	case 6:
		v = (x<<3)&8 | (x>>18)&4 | (x>>9)&2 | (x>>25)&1
	case 7:
		v = (x>>24)&8 | (x>>3)&4 | (x>>16)&2 | (x>>11)&1
	}
	return int(v)
}

// Bucket value of a 64-bit input block for S-box n. The upper 6 bits are
// the S-box input before the key is mixed in, the lower 4 bits are the
// matching bits of P^-1(L0 ^ R0).
func RoundXORValue(block uint64, n int) int {
	permuted := PermuteBits(block, InitialPermutation[:], 64)
	right := uint32(permuted)
	left := uint32(permuted >> 32)
	return ExpandedChunk(n, right)<<4 ^ InversePermutedChunk(n, right^left)
}

// Returns the intermediate for S-box n: the S-box output XORed with the
// round input bits it ends up on, i.e. 4 bits of P^-1(R0 ^ R1).
// x is a RoundXORValue and k a 6-bit round key chunk.
func (t *Tables) RoundXOR(n int) func(x, k int) int {
	return func(x, k int) int {
		return t.Sbox(n, (x>>4)^k) ^ x&0xf
	}
}

func rotl28(x uint32, s uint) uint32 {
	return (x<<s | x>>(28-s)) & 0xfffffff
}

// Computes the 16 48-bit round keys of a 64-bit DES key.
func RoundKeys(key uint64) [16]uint64 {
	var keys [16]uint64
	cd := PermuteBits(key, PermutedChoice1[:], 64)
	c := uint32(cd >> 28)
	d := uint32(cd & 0xfffffff)
	for i, s := range keyShifts {
		c, d = rotl28(c, s), rotl28(d, s)
		keys[i] = PermuteBits(uint64(c)<<28|uint64(d), PermutedChoice2[:], 56)
	}
	return keys
}

// The 6 bits of a 48-bit round key that enter S-box n.
func KeyChunk(roundKey uint64, n int) int {
	return int(roundKey>>uint(42-6*n)) & 0x3f
}

// Returns the first round key chunk of S-box n for an 8-byte key.
func FirstRoundKeyChunk(key []byte, n int) (int, error) {
	if len(key) != 8 {
		return 0, errors.Errorf("DES key must be 8 bytes, got %d", len(key))
	}
	if n < 0 || n > 7 {
		return 0, errors.Errorf("S-box %d out of range", n)
	}
	var k uint64
	for _, b := range key {
		k = k<<8 | uint64(b)
	}
	return KeyChunk(RoundKeys(k)[0], n), nil
}
