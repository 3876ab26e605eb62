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
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/google/gosca"

	"gonum.org/v1/gonum/mat"
)

// Maximum of every row of S. NaN cells are ignored, an all-NaN row peaks
// at NaN.
func Peaks(S *mat.Dense) []float64 {
	peaks, _ := rowPeaks(S, false)
	return peaks
}

// Maximum magnitude of every row of S, for distinguishers whose sign
// carries no information (CPA against an unknown leakage polarity).
func AbsPeaks(S *mat.Dense) []float64 {
	peaks, _ := rowPeaks(S, true)
	return peaks
}

// Sample index of the peak of every row, -1 for all-NaN rows.
func PeakLocations(S *mat.Dense, abs bool) []int {
	_, locs := rowPeaks(S, abs)
	return locs
}

func rowPeaks(S *mat.Dense, abs bool) ([]float64, []int) {
	r, _ := S.Dims()
	peaks := make([]float64, r)
	locs := make([]int, r)
	for k := 0; k < r; k++ {
		peaks[k], locs[k] = math.NaN(), -1
		for u, v := range S.RawRowView(k) {
			if abs {
				v = math.Abs(v)
			}
			if math.IsNaN(v) {
				continue
			}
			if locs[k] < 0 || v > peaks[k] {
				peaks[k], locs[k] = v, u
			}
		}
	}
	return peaks, locs
}

// Returns the candidate with the highest peak and the peak. Ties go to the
// lowest candidate. Returns -1 and NaN when every peak is NaN.
func Winner(peaks []float64) (int, float64) {
	best, peak := -1, math.NaN()
	for k, p := range peaks {
		if math.IsNaN(p) {
			continue
		}
		if best < 0 || p > peak {
			best, peak = k, p
		}
	}
	return best, peak
}

// Counts the candidates whose peak is at least the peak of trueCandidate.
// Ties aren't broken: rank 1 means no other candidate scores as high.
func Rank(peaks []float64, trueCandidate int) (int, error) {
	if trueCandidate < 0 || trueCandidate >= len(peaks) {
		return 0, &gosca.IndexError{What: "Candidate", Index: trueCandidate, Limit: len(peaks)}
	}
	truePeak := peaks[trueCandidate]
	if math.IsNaN(truePeak) {
		return 0, &gosca.NumericalError{Candidate: trueCandidate, Reason: "no peak for the correct candidate"}
	}
	rank := 0
	for _, p := range peaks {
		if p >= truePeak {
			rank++
		}
	}
	return rank, nil
}

// Outcome for one candidate of one distinguisher.
type Summary struct {
	Candidate int     `json:"candidate"`
	Peak      float64 `json:"peak"`
	Location  int     `json:"location"`
	Rank      int     `json:"rank"`
}

func (s Summary) String() string {
	return fmt.Sprintf("<Key:0x%02x, Peak:%f, Loc: %d, Rank: %d>", s.Candidate, s.Peak, s.Location, s.Rank)
}

// A NaN peak encodes as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	var peak *float64
	if !math.IsNaN(s.Peak) {
		peak = &s.Peak
	}
	return json.Marshal(struct {
		plain
		Peak *float64 `json:"peak"`
	}{plain(s), peak})
}

// Summarizes candidate k given the peaks and peak locations of a score
// matrix.
func Summarize(peaks []float64, locs []int, k int) (Summary, error) {
	rank, err := Rank(peaks, k)
	if err != nil {
		return Summary{}, err
	}
	return Summary{k, peaks[k], locs[k], rank}, nil
}

// Summaries of all candidates with a peak, best first. Equal peaks keep
// candidate order and share the worse rank.
func Ranking(peaks []float64, locs []int) []Summary {
	var ranked []Summary
	for k, p := range peaks {
		if !math.IsNaN(p) {
			ranked = append(ranked, Summary{Candidate: k, Peak: p, Location: locs[k]})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Peak > ranked[j].Peak })
	for i := 0; i < len(ranked); {
		j := i + 1
		for j < len(ranked) && ranked[j].Peak == ranked[i].Peak {
			j++
		}
		for ; i < j; i++ {
			ranked[i].Rank = j
		}
	}
	return ranked
}
