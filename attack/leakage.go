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
)

// Maps an intermediate to the predicted leakage.
type LeakageFunc func(x int) float64

// Number of set bits in x.
func HammingWeight(x int) float64 {
	return float64(bits.OnesCount(uint(x)))
}

// The intermediate itself.
func Identity(x int) float64 {
	return float64(x)
}
