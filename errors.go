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

// Error taxonomy shared by the trace reader, the averager and the attacks.
package gosca

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrFormat    = errors.New("malformed trace set")
	ErrIndex     = errors.New("index out of range")
	ErrNumerical = errors.New("numerical failure")
	ErrContract  = errors.New("contract violation")
)

// Malformed or internally inconsistent trace set header.
type FormatError struct {
	Offset int64
	Tag    byte
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("Format error at offset %d (tag 0x%02x): %s", e.Offset, e.Tag, e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// Out of range trace or bucket index.
type IndexError struct {
	What  string
	Index int
	Limit int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0, %d)", e.What, e.Index, e.Limit)
}

func (e *IndexError) Is(target error) bool { return target == ErrIndex }

// Singular fit or degenerate statistic. Candidate is -1 when the failure
// isn't tied to a single key candidate.
type NumericalError struct {
	Candidate int
	Reason    string
}

func (e *NumericalError) Error() string {
	if e.Candidate < 0 {
		return fmt.Sprintf("Numerical error: %s", e.Reason)
	}
	return fmt.Sprintf("Numerical error for candidate 0x%02x: %s", e.Candidate, e.Reason)
}

func (e *NumericalError) Is(target error) bool { return target == ErrNumerical }

// Precondition violated by the caller.
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("Contract error: %s", e.Reason)
}

func (e *ContractError) Is(target error) bool { return target == ErrContract }

func contractErrorf(format string, args ...interface{}) error {
	return &ContractError{fmt.Sprintf(format, args...)}
}
