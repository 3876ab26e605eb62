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
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// What LRA does with a candidate whose design matrix can't be inverted.
type SingularPolicy int

const (
	// Fail the whole attack with the first NumericalError.
	AbortOnSingular SingularPolicy = iota
	// Fill the candidate's scores with NaN and carry on.
	SkipSingular
)

func (p SingularPolicy) String() string {
	if p == SkipSingular {
		return "skip"
	}
	return "abort"
}

type options struct {
	workers      int
	coefficients bool
	singular     SingularPolicy
}

type Option func(*options)

// Number of candidates evaluated in parallel. 1 runs strictly in order,
// 0 uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// Keep the fitted LRA coefficients.
func WithCoefficients(keep bool) Option {
	return func(o *options) { o.coefficients = keep }
}

func WithSingularPolicy(p SingularPolicy) Option {
	return func(o *options) { o.singular = p }
}

func newOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers <= 0 {
		o.workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// Calls fn for candidates [0, n) on up to workers goroutines. Stops handing
// out candidates after the first error and returns it.
func forEachCandidate(n, workers int, fn func(k int) error) error {
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for k := 0; k < n; k++ {
		if ctx.Err() != nil {
			break
		}
		k := k
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			return fn(k)
		})
	}
	return g.Wait()
}
