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
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// Writes a score matrix in NumPy .npy format, NaN cells included.
func WriteScores(w io.Writer, S *mat.Dense) error {
	if S == nil {
		return contractError("no scores to write")
	}
	return errors.Wrap(npyio.Write(w, S), "Error writing scores")
}

// Reads a score matrix written by WriteScores.
func ReadScores(r io.Reader) (*mat.Dense, error) {
	var S mat.Dense
	if err := npyio.Read(r, &S); err != nil {
		return nil, errors.Wrap(err, "Error reading scores")
	}
	return &S, nil
}

// Saves the scores of every result to dir/<distinguisher>.npy and returns
// the file names.
func SaveScores(dir string, results []*Result) ([]string, error) {
	var files []string
	for _, r := range results {
		filename := filepath.Join(dir, r.Distinguisher+".npy")
		f, err := os.Create(filename)
		if err != nil {
			return files, errors.Wrap(err, "Error creating scores file")
		}
		err = WriteScores(f, r.Scores)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return files, errors.Wrapf(err, "In %s", filename)
		}
		files = append(files, filename)
	}
	return files, nil
}
