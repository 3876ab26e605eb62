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

// Reader for Inspector trace set (.trs) containers.
// The header is a sequence of tag/length/value records followed by a flat
// block of fixed-size trace records.
package gosca

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

type Tag byte

const (
	TagNumberOfTraces  Tag = 0x41
	TagNumberOfSamples Tag = 0x42
	TagSampleCoding    Tag = 0x43
	TagDataSpace       Tag = 0x44
	TagTitleSpace      Tag = 0x45
	TagGlobalTitle     Tag = 0x46
	TagDescription     Tag = 0x47
	TagOffsetX         Tag = 0x48
	TagLabelX          Tag = 0x49
	TagLabelY          Tag = 0x4a
	TagScaleX          Tag = 0x4b
	TagScaleY          Tag = 0x4c
	TagTraceBlock      Tag = 0x5f
)

const (
	// Set in the length byte when the low 7 bits count the little-endian
	// bytes that hold the real length.
	extendedLengthFlag = 0x80
	maxExtendedLength  = 8
)

type SampleCoding byte

const (
	CodingByte  SampleCoding = 0x01
	CodingShort SampleCoding = 0x02
	CodingInt   SampleCoding = 0x04
	CodingFloat SampleCoding = 0x14
)

// Size of a single sample in bytes, 0 for unknown codings.
func (c SampleCoding) Width() int {
	switch c {
	case CodingByte, CodingShort, CodingInt:
		return int(c)
	case CodingFloat:
		return 4
	}
	return 0
}

func (c SampleCoding) String() string {
	switch c {
	case CodingByte:
		return "int8"
	case CodingShort:
		return "int16"
	case CodingInt:
		return "int32"
	case CodingFloat:
		return "float32"
	}
	return fmt.Sprintf("SampleCoding(0x%02x)", byte(c))
}

type Header struct {
	TraceCount  int
	SampleCount int
	Coding      SampleCoding
	DataSpace   int
	TitleSpace  int

	// Informational only.
	GlobalTitle string
	Description string
	LabelX      string
	LabelY      string
	OffsetX     int32
	ScaleX      float32
	ScaleY      float32

	// Byte offset of the first trace record.
	TraceBlockOffset int64
}

// Size of the sample part of a trace record.
func (h *Header) SampleSpace() int {
	return h.SampleCount * h.Coding.Width()
}

// Size of a single trace record: title, data, samples.
func (h *Header) TraceSpace() int {
	return h.TitleSpace + h.DataSpace + h.SampleSpace()
}

// Only meaningful once the block is known to fit, see blockFits.
func (h *Header) TraceBlockSpace() int64 {
	return int64(h.TraceCount) * int64(h.TraceSpace())
}

// Reports whether TraceCount records fit in n bytes, without forming the
// block size.
func (h *Header) blockFits(n int64) bool {
	if n < 0 {
		return false
	}
	space := int64(h.TitleSpace) + int64(h.DataSpace) + int64(h.SampleCount)*int64(h.Coding.Width())
	return space == 0 || int64(h.TraceCount) <= n/space
}

// A trace set opened for random access reads.
// Trace uses positioned reads only, so it is safe to call from multiple
// goroutines.
type TraceSet struct {
	Header
	r      io.ReaderAt
	size   int64
	closer io.Closer
}

// Opens a .trs file and parses its header.
func OpenTraceSet(filename string) (*TraceSet, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "Error opening trace set")
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "Stat failed")
	}
	ts, err := NewTraceSet(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "Failed to parse %s", filename)
	}
	ts.closer = f
	glog.V(1).Infof("Opened %s: %d traces x %d %v samples, %d data bytes",
		filename, ts.TraceCount, ts.SampleCount, ts.Coding, ts.DataSpace)
	return ts, nil
}

// Parses the header of a trace set held by r, which is size bytes long.
func NewTraceSet(r io.ReaderAt, size int64) (*TraceSet, error) {
	ts := &TraceSet{r: r, size: size}
	if err := ts.parseHeader(); err != nil {
		return nil, err
	}
	return ts, nil
}

func (ts *TraceSet) Close() error {
	if ts.closer == nil {
		return nil
	}
	err := ts.closer.Close()
	ts.closer = nil
	return err
}

func (ts *TraceSet) NumTraces() int { return ts.TraceCount }

// Sequential reader over the header records.
type headerReader struct {
	r   io.ReaderAt
	pos int64
	buf [8]byte
}

func (h *headerReader) read(n int) ([]byte, error) {
	var p []byte
	if n <= len(h.buf) {
		p = h.buf[:n]
	} else {
		p = make([]byte, n)
	}
	read, err := h.r.ReadAt(p, h.pos)
	h.pos += int64(read)
	if read < n {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return p, nil
}

type headerRecord struct {
	tag    Tag
	offset int64
	length int64
	// Bytes taken by the tag and length encoding.
	overhead int64
}

func (ts *TraceSet) formatError(rec headerRecord, format string, args ...interface{}) error {
	return &FormatError{rec.offset, byte(rec.tag), fmt.Sprintf(format, args...)}
}

func (ts *TraceSet) readRecordHead(rd *headerReader) (headerRecord, error) {
	rec := headerRecord{offset: rd.pos}
	b, err := rd.read(2)
	if err != nil {
		return rec, &FormatError{rec.offset, 0, fmt.Sprintf("reading tag and length: %v", err)}
	}
	rec.tag = Tag(b[0])
	rec.length = int64(b[1])
	rec.overhead = 2
	if b[1]&extendedLengthFlag != 0 {
		n := int(b[1] &^ extendedLengthFlag)
		if n > maxExtendedLength {
			return rec, ts.formatError(rec, "length encoded in %d bytes", n)
		}
		ext, err := rd.read(n)
		if err != nil {
			return rec, ts.formatError(rec, "reading extended length: %v", err)
		}
		rec.length = 0
		for i, v := range ext {
			rec.length |= int64(v) << (8 * uint(i))
		}
		rec.overhead += int64(n)
		if rec.length < 0 {
			return rec, ts.formatError(rec, "extended length overflows")
		}
	}
	return rec, nil
}

func (ts *TraceSet) readValue(rd *headerReader, rec headerRecord) ([]byte, error) {
	if rec.length > ts.size-rd.pos {
		return nil, ts.formatError(rec, "value of %d bytes runs past end of file", rec.length)
	}
	v, err := rd.read(int(rec.length))
	if err != nil {
		return nil, ts.formatError(rec, "reading value: %v", err)
	}
	return v, nil
}

func (ts *TraceSet) readFixed(rd *headerReader, rec headerRecord, width int) ([]byte, error) {
	if rec.length != int64(width) {
		return nil, ts.formatError(rec, "declared length %d, expected %d", rec.length, width)
	}
	return ts.readValue(rd, rec)
}

// Offset where the header records end if the declared trace block fills
// the rest of the file. A block that can't fit leaves the whole file to the
// header, the trace block marker then reports it.
func (ts *TraceSet) headerEnd() int64 {
	if !ts.blockFits(ts.size) {
		return ts.size
	}
	return ts.size - ts.TraceBlockSpace()
}

// Walks the header records until the running offset reaches the start of
// the trailing trace block.
func (ts *TraceSet) parseHeader() error {
	rd := &headerReader{r: ts.r}
	seen := map[Tag]bool{}
	var offset int64
	var blockSeen bool

	for offset < ts.headerEnd() {
		rec, err := ts.readRecordHead(rd)
		if err != nil {
			return err
		}
		glog.V(2).Infof("[trs-header]: tag = 0x%02x, len = %d, offset = %d", byte(rec.tag), rec.length, rec.offset)

		switch rec.tag {
		case TagNumberOfTraces, TagNumberOfSamples, TagSampleCoding, TagDataSpace, TagTitleSpace:
			if blockSeen {
				return ts.formatError(rec, "geometry field after trace block")
			}
			if err = ts.parseGeometry(rd, rec); err != nil {
				return err
			}
			seen[rec.tag] = true
		case TagTraceBlock:
			if blockSeen {
				return ts.formatError(rec, "duplicate trace block")
			}
			if rec.length != 0 {
				return ts.formatError(rec, "trace block marker carries %d value bytes", rec.length)
			}
			for _, t := range []Tag{TagNumberOfTraces, TagNumberOfSamples, TagSampleCoding} {
				if !seen[t] {
					return ts.formatError(rec, "trace block before tag 0x%02x", byte(t))
				}
			}
			ts.TraceBlockOffset = rd.pos
			if !ts.blockFits(ts.size - ts.TraceBlockOffset) {
				return ts.formatError(rec, "%d traces of %d bytes exceed remaining %d bytes",
					ts.TraceCount, ts.TraceSpace(), ts.size-ts.TraceBlockOffset)
			}
			rd.pos += ts.TraceBlockSpace()
			blockSeen = true
		default:
			if err = ts.parseOptional(rd, rec); err != nil {
				return err
			}
		}
		offset += rec.overhead + rec.length
	}

	if !blockSeen {
		return &FormatError{offset, byte(TagTraceBlock), "missing trace block"}
	}
	return nil
}

func (ts *TraceSet) parseGeometry(rd *headerReader, rec headerRecord) error {
	switch rec.tag {
	case TagNumberOfTraces, TagNumberOfSamples:
		v, err := ts.readFixed(rd, rec, 4)
		if err != nil {
			return err
		}
		n := binary.LittleEndian.Uint32(v)
		if n > math.MaxInt32 {
			return ts.formatError(rec, "count %d too large", n)
		}
		if rec.tag == TagNumberOfTraces {
			ts.TraceCount = int(n)
		} else {
			ts.SampleCount = int(n)
		}
	case TagSampleCoding:
		v, err := ts.readFixed(rd, rec, 1)
		if err != nil {
			return err
		}
		ts.Coding = SampleCoding(v[0])
		if ts.Coding.Width() == 0 {
			return ts.formatError(rec, "unsupported sample coding 0x%02x", v[0])
		}
	case TagDataSpace:
		v, err := ts.readFixed(rd, rec, 2)
		if err != nil {
			return err
		}
		ts.DataSpace = int(binary.LittleEndian.Uint16(v))
	case TagTitleSpace:
		v, err := ts.readFixed(rd, rec, 1)
		if err != nil {
			return err
		}
		ts.TitleSpace = int(v[0])
	}
	return nil
}

func (ts *TraceSet) parseOptional(rd *headerReader, rec headerRecord) error {
	var v []byte
	var err error
	switch rec.tag {
	case TagOffsetX, TagScaleX, TagScaleY:
		if v, err = ts.readFixed(rd, rec, 4); err != nil {
			return err
		}
	default:
		if v, err = ts.readValue(rd, rec); err != nil {
			return err
		}
	}

	switch rec.tag {
	case TagGlobalTitle:
		ts.GlobalTitle = string(v)
	case TagDescription:
		ts.Description = string(v)
	case TagLabelX:
		ts.LabelX = string(v)
	case TagLabelY:
		ts.LabelY = string(v)
	case TagOffsetX:
		ts.OffsetX = int32(binary.LittleEndian.Uint32(v))
	case TagScaleX:
		ts.ScaleX = math.Float32frombits(binary.LittleEndian.Uint32(v))
	case TagScaleY:
		ts.ScaleY = math.Float32frombits(binary.LittleEndian.Uint32(v))
	default:
		glog.V(1).Infof("Skipping unknown tag 0x%02x (%d bytes)", byte(rec.tag), rec.length)
	}
	return nil
}

// Reads trace i. The returned trace owns all of its slices.
func (ts *TraceSet) Trace(i int) (Trace, error) {
	if i < 0 || i >= ts.TraceCount {
		return Trace{}, &IndexError{"Trace", i, ts.TraceCount}
	}
	buf := make([]byte, ts.TraceSpace())
	off := ts.TraceBlockOffset + int64(i)*int64(len(buf))
	n, err := ts.r.ReadAt(buf, off)
	if n < len(buf) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Trace{}, errors.Wrapf(err, "Reading trace %d", i)
	}

	t := Trace{}
	t.Title = string(buf[:ts.TitleSpace])
	buf = buf[ts.TitleSpace:]
	t.Data = make([]byte, ts.DataSpace)
	copy(t.Data, buf[:ts.DataSpace])
	t.Raw, t.Samples = decodeSamples(ts.Coding, ts.SampleCount, buf[ts.DataSpace:])
	return t, nil
}

// Decodes little-endian samples. Returns both the exact typed values and
// their float64 widening.
func decodeSamples(c SampleCoding, n int, b []byte) (interface{}, []float64) {
	out := make([]float64, n)
	switch c {
	case CodingByte:
		raw := make([]int8, n)
		for i := range raw {
			raw[i] = int8(b[i])
			out[i] = float64(raw[i])
		}
		return raw, out
	case CodingShort:
		raw := make([]int16, n)
		for i := range raw {
			raw[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
			out[i] = float64(raw[i])
		}
		return raw, out
	case CodingInt:
		raw := make([]int32, n)
		for i := range raw {
			raw[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
			out[i] = float64(raw[i])
		}
		return raw, out
	default:
		raw := make([]float32, n)
		for i := range raw {
			raw[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
			out[i] = float64(raw[i])
		}
		return raw, out
	}
}
