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

package gosca

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
)

type trsWriter struct {
	w   *bufio.Writer
	err error
}

func (tw *trsWriter) write(p []byte) {
	if tw.err == nil {
		_, tw.err = tw.w.Write(p)
	}
}

func (tw *trsWriter) record(tag Tag, value []byte) {
	if len(value) < extendedLengthFlag {
		tw.write([]byte{byte(tag), byte(len(value))})
	} else {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(value)))
		tw.write([]byte{byte(tag), extendedLengthFlag | 4})
		tw.write(n[:])
	}
	tw.write(value)
}

func (tw *trsWriter) uint32(tag Tag, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	tw.record(tag, b[:])
}

func (tw *trsWriter) text(tag Tag, s string) {
	if s != "" {
		tw.record(tag, []byte(s))
	}
}

// Reports whether v truncated towards zero is representable in c.
func (c SampleCoding) holds(v float64) bool {
	var lo, hi float64
	switch c {
	case CodingByte:
		lo, hi = math.MinInt8, math.MaxInt8
	case CodingShort:
		lo, hi = math.MinInt16, math.MaxInt16
	case CodingInt:
		lo, hi = math.MinInt32, math.MaxInt32
	default:
		return true
	}
	v = math.Trunc(v)
	return v >= lo && v <= hi
}

func encodeSamples(c SampleCoding, samples []float64, b []byte) {
	for i, v := range samples {
		switch c {
		case CodingByte:
			b[i] = byte(int8(v))
		case CodingShort:
			binary.LittleEndian.PutUint16(b[2*i:], uint16(int16(v)))
		case CodingInt:
			binary.LittleEndian.PutUint32(b[4*i:], uint32(int32(v)))
		default:
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(float32(v)))
		}
	}
}

// Writes traces as a .trs trace set with the geometry and labels of h.
// TraceCount is taken from len(traces). Titles are cut or zero padded to
// TitleSpace; data and sample counts must match the header exactly.
// Integer codings truncate samples towards zero; samples outside the
// coding's range, NaN included, are rejected.
func WriteTraceSet(w io.Writer, h Header, traces []Trace) error {
	if h.Coding.Width() == 0 {
		return contractErrorf("unsupported sample coding %v", h.Coding)
	}
	if h.DataSpace < 0 || h.DataSpace > math.MaxUint16 || h.TitleSpace < 0 || h.TitleSpace > math.MaxUint8 {
		return contractErrorf("data space %d or title space %d out of range", h.DataSpace, h.TitleSpace)
	}
	for i, t := range traces {
		if len(t.Data) != h.DataSpace || len(t.Samples) != h.SampleCount {
			return contractErrorf("trace %d has %d data bytes and %d samples, header says %d and %d",
				i, len(t.Data), len(t.Samples), h.DataSpace, h.SampleCount)
		}
		for j, v := range t.Samples {
			if !h.Coding.holds(v) {
				return contractErrorf("trace %d sample %d (%v) doesn't fit %v", i, j, v, h.Coding)
			}
		}
	}

	tw := &trsWriter{w: bufio.NewWriter(w)}
	tw.uint32(TagNumberOfTraces, uint32(len(traces)))
	tw.uint32(TagNumberOfSamples, uint32(h.SampleCount))
	tw.record(TagSampleCoding, []byte{byte(h.Coding)})
	tw.record(TagDataSpace, []byte{byte(h.DataSpace), byte(h.DataSpace >> 8)})
	tw.record(TagTitleSpace, []byte{byte(h.TitleSpace)})
	tw.text(TagGlobalTitle, h.GlobalTitle)
	tw.text(TagDescription, h.Description)
	tw.text(TagLabelX, h.LabelX)
	tw.text(TagLabelY, h.LabelY)
	if h.OffsetX != 0 {
		tw.uint32(TagOffsetX, uint32(h.OffsetX))
	}
	if h.ScaleX != 0 {
		tw.uint32(TagScaleX, math.Float32bits(h.ScaleX))
	}
	if h.ScaleY != 0 {
		tw.uint32(TagScaleY, math.Float32bits(h.ScaleY))
	}
	tw.record(TagTraceBlock, nil)

	buf := make([]byte, h.TraceSpace())
	for _, t := range traces {
		for i := range buf[:h.TitleSpace] {
			buf[i] = 0
		}
		copy(buf[:h.TitleSpace], t.Title)
		copy(buf[h.TitleSpace:], t.Data)
		encodeSamples(h.Coding, t.Samples, buf[h.TitleSpace+h.DataSpace:])
		tw.write(buf)
	}
	if tw.err != nil {
		return errors.Wrap(tw.err, "Error writing trace set")
	}
	return errors.Wrap(tw.w.Flush(), "Error writing trace set")
}

// Writes a trace set to filename, see WriteTraceSet.
func SaveTraceSet(filename string, h Header, traces []Trace) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "Error creating trace set")
	}
	if err = WriteTraceSet(f, h, traces); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
