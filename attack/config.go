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
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/gosca"
	"github.com/google/gosca/cipher/aes"
	"github.com/google/gosca/cipher/des"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	TargetAESSboxOut         = "aes-sbox-out"
	TargetAESSboxInXorOut    = "aes-sbox-in-xor-out"
	TargetAESInvSboxOut      = "aes-inv-sbox-out"
	TargetAESInvSboxInXorOut = "aes-inv-sbox-in-xor-out"
	TargetDESRoundXOR        = "des-round-xor"

	BasisSingleBits         = "single-bits"
	BasisSingleBitsAndPairs = "single-bits-and-pairs"
	BasisHammingWeight      = "hw"
	BasisAllParities        = "all-parities"

	LeakageHammingWeight = "hw"
	LeakageIdentity      = "identity"

	DistinguisherCPA = "cpa"
	DistinguisherLRA = "lra"
	DistinguisherDPA = "dpa"

	PeakRaw = "raw"
	PeakAbs = "abs"
)

// Everything an attack needs besides the traces. Loaded from YAML, e.g.
//  traceset: traces/swaes.trs
//  traces: 2000
//  samples: {lo: 900, hi: 1100}
//  byte: 1
//  target: aes-sbox-out
//  distinguishers: [cpa, lra]
//  known_key: 2b7e151628aed2a6abf7158809cf4f3c
type Config struct {
	TraceSet string `yaml:"traceset" json:"traceset"`
	// Number of traces to use, 0 for all.
	Traces int `yaml:"traces" json:"traces"`
	// Index of the first trace.
	Offset  int          `yaml:"offset" json:"offset"`
	Samples gosca.Window `yaml:"samples" json:"samples"`
	// Index of the first data byte the target reads.
	Byte   int    `yaml:"byte" json:"byte"`
	Target string `yaml:"target" json:"target"`
	// DES S-box under attack.
	Sbox    int    `yaml:"sbox" json:"sbox"`
	Leakage string `yaml:"leakage" json:"leakage"`
	Basis   string `yaml:"basis" json:"basis"`
	// Average traces per data value before attacking.
	Averaging      bool     `yaml:"averaging" json:"averaging"`
	Distinguishers []string `yaml:"distinguishers" json:"distinguishers"`
	Peak           string   `yaml:"peak" json:"peak"`
	// Intermediate bit DPA splits the traces on.
	DPABit int `yaml:"dpa_bit" json:"dpa_bit"`
	// Full cipher key in hex, used to rank the correct candidate.
	KnownKey string `yaml:"known_key" json:"known_key"`
	// Traces were taken during decryption, the known key is expanded to
	// the last round key.
	Decrypt      bool   `yaml:"decrypt" json:"decrypt"`
	AdjustedR2   bool   `yaml:"adjusted_r2" json:"adjusted_r2"`
	NormalizeR2  bool   `yaml:"normalize_r2" json:"normalize_r2"`
	Coefficients bool   `yaml:"coefficients" json:"coefficients"`
	Singular     string `yaml:"singular" json:"singular"`
	// Rerun the attack every EvolutionStep traces, 0 to run once.
	EvolutionStep int `yaml:"evolution_step" json:"evolution_step"`
	// Traces fed before the first evolution step is evaluated.
	WarmUp  int `yaml:"warm_up" json:"warm_up"`
	Workers int `yaml:"workers" json:"workers"`
}

func DefaultConfig() Config {
	return Config{
		Target:         TargetAESSboxOut,
		Leakage:        LeakageHammingWeight,
		Basis:          BasisSingleBits,
		Distinguishers: []string{DistinguisherCPA},
		Peak:           PeakAbs,
		Singular:       SkipSingular.String(),
	}
}

// Parses a YAML config on top of DefaultConfig. Unknown keys are an error.
func ParseConfig(b []byte) (Config, error) {
	c := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return c, errors.Wrap(err, "Error parsing attack config")
	}
	return c, nil
}

func LoadConfig(filename string) (Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, errors.Wrap(err, "Error reading attack config")
	}
	c, err := ParseConfig(b)
	if err != nil {
		return c, errors.Wrapf(err, "In %s", filename)
	}
	return c, nil
}

func contractError(format string, args ...interface{}) error {
	return &gosca.ContractError{Reason: fmt.Sprintf(format, args...)}
}

func (c *Config) Validate() error {
	if c.Traces < 0 || c.Offset < 0 {
		return contractError("negative trace range %d+%d", c.Offset, c.Traces)
	}
	if !c.Samples.IsZero() && (c.Samples.Lo < 0 || c.Samples.Hi <= c.Samples.Lo) {
		return contractError("empty sample window [%d, %d)", c.Samples.Lo, c.Samples.Hi)
	}
	if c.Byte < 0 {
		return contractError("negative data byte %d", c.Byte)
	}
	switch c.Target {
	case TargetAESSboxOut, TargetAESSboxInXorOut, TargetAESInvSboxOut, TargetAESInvSboxInXorOut:
	case TargetDESRoundXOR:
		if c.Sbox < 0 || c.Sbox > 7 {
			return contractError("DES S-box %d out of range", c.Sbox)
		}
	default:
		return contractError("unknown target %q", c.Target)
	}
	switch c.Leakage {
	case LeakageHammingWeight, LeakageIdentity:
	default:
		return contractError("unknown leakage model %q", c.Leakage)
	}
	switch c.Basis {
	case BasisSingleBits, BasisSingleBitsAndPairs, BasisHammingWeight, BasisAllParities:
	default:
		return contractError("unknown basis %q", c.Basis)
	}
	if len(c.Distinguishers) == 0 {
		return contractError("no distinguisher")
	}
	for _, d := range c.Distinguishers {
		if d != DistinguisherCPA && d != DistinguisherLRA && d != DistinguisherDPA {
			return contractError("unknown distinguisher %q", d)
		}
	}
	width := aes.IntermediateWidth
	if c.Target == TargetDESRoundXOR {
		width = des.IntermediateWidth
	}
	if c.DPABit < 0 || c.DPABit >= width {
		return contractError("DPA bit %d out of the %d intermediate bits", c.DPABit, width)
	}
	if c.Peak != PeakRaw && c.Peak != PeakAbs {
		return contractError("peak must be %q or %q, got %q", PeakRaw, PeakAbs, c.Peak)
	}
	if c.Singular != AbortOnSingular.String() && c.Singular != SkipSingular.String() {
		return contractError("singular policy must be abort or skip, got %q", c.Singular)
	}
	if c.EvolutionStep < 0 || c.WarmUp < 0 || c.Workers < 0 {
		return contractError("negative evolution step, warm up or workers")
	}
	if c.KnownKey != "" {
		if _, err := hex.DecodeString(c.KnownKey); err != nil {
			return contractError("known key isn't hex: %v", err)
		}
	}
	return nil
}

func (c *Config) Options() []Option {
	policy := AbortOnSingular
	if c.Singular == SkipSingular.String() {
		policy = SkipSingular
	}
	return []Option{
		WithWorkers(c.Workers),
		WithCoefficients(c.Coefficients),
		WithSingularPolicy(policy),
	}
}

// A resolved attack target.
type Model struct {
	Name string
	// Size of the key candidate domain.
	Candidates int
	// Bit width of the intermediate.
	Width int
	// Size of the data value domain, i.e. the averager buckets.
	Buckets int
	// Number of data bytes every trace must carry.
	DataBytes int
	// Turns trace data into the data value fed to Intermediate.
	Reduce       gosca.Selector
	Intermediate IntermediateFunc
	Leakage      LeakageFunc
	Basis        BasisModel

	trueCandidate func(key []byte) (int, error)
}

// Returns the candidate the known key corresponds to, or ok == false
// without a known key.
func (m *Model) TrueCandidate(knownKey string) (k int, ok bool, err error) {
	if knownKey == "" {
		return 0, false, nil
	}
	key, err := hex.DecodeString(knownKey)
	if err != nil {
		return 0, false, errors.Wrap(err, "Invalid known key")
	}
	k, err = m.trueCandidate(key)
	if err != nil {
		return 0, false, err
	}
	return k, true, nil
}

// Validates c and turns its names into a Model.
func (c *Config) Resolve() (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	m := &Model{Name: c.Target}

	if strings.HasPrefix(c.Target, "aes-") {
		tables := aes.NewTables()
		m.Candidates = aes.NumCandidates
		m.Width = aes.IntermediateWidth
		m.Buckets = 256
		m.DataBytes = c.Byte + 1
		m.Reduce = gosca.ByteSelector(c.Byte)
		switch c.Target {
		case TargetAESSboxOut:
			m.Intermediate = tables.SboxOut
		case TargetAESSboxInXorOut:
			m.Intermediate = tables.SboxInXorOut
		case TargetAESInvSboxOut:
			m.Intermediate = tables.InvSboxOut
		case TargetAESInvSboxInXorOut:
			m.Intermediate = tables.InvSboxInXorOut
		}
		i, decrypt := c.Byte, c.Decrypt
		m.trueCandidate = func(key []byte) (int, error) {
			return tables.RoundKeyByte(key, i, decrypt)
		}
	} else {
		tables := des.NewTables()
		sbox := c.Sbox
		block := gosca.Uint64Selector(c.Byte)
		m.Candidates = des.NumCandidates
		m.Width = des.IntermediateWidth
		m.Buckets = des.NumBuckets
		m.DataBytes = c.Byte + 8
		m.Reduce = func(data []byte) int {
			return des.RoundXORValue(uint64(block(data)), sbox)
		}
		m.Intermediate = tables.RoundXOR(sbox)
		m.trueCandidate = func(key []byte) (int, error) {
			return des.FirstRoundKeyChunk(key, sbox)
		}
	}

	switch c.Leakage {
	case LeakageHammingWeight:
		m.Leakage = HammingWeight
	case LeakageIdentity:
		m.Leakage = Identity
	}
	switch c.Basis {
	case BasisSingleBits:
		m.Basis = SingleBits{m.Width}
	case BasisSingleBitsAndPairs:
		m.Basis = SingleBitsAndPairs{m.Width}
	case BasisHammingWeight:
		m.Basis = HammingWeightBasis{}
	case BasisAllParities:
		m.Basis = AllParities{m.Width}
	}
	return m, nil
}
