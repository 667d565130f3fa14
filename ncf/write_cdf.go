/*
Copyright © 2022 the reshapr authors.
This file is part of reshapr.

reshapr is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

reshapr is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with reshapr.  If not, see <http://www.gnu.org/licenses/>.
*/

package ncf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/reshapr"
)

// cdfSink writes netCDF classic files.
type cdfSink struct {
	l  *layout
	f  *os.File
	cf *cdf.File
}

func newCDFSink(path string, l *layout, format reshapr.Format) (*cdfSink, error) {
	var dims []string
	var lengths []int
	if l.unlimited != "" {
		dims = append(dims, l.unlimited)
		lengths = append(lengths, 0)
	}
	for _, c := range l.ds.Coords {
		if c.Name == l.unlimited {
			continue
		}
		dims = append(dims, c.Name)
		lengths = append(lengths, c.Len())
	}
	h := cdf.NewHeader(dims, lengths)
	for _, a := range l.ds.Attrs {
		h.AddAttribute("", a.Name, cdfAttr(a.Value, reshapr.Float32))
	}
	for _, c := range l.ds.Coords {
		enc := l.plan[c.Name]
		h.AddVariable(c.Name, []string{c.Name}, cdfZero(enc.DType))
		for _, a := range coordAttrs(c, enc) {
			h.AddAttribute(c.Name, a.Name, cdfAttr(a.Value, enc.DType))
		}
	}
	for _, v := range l.ds.Vars {
		enc := l.plan[v.Name]
		h.AddVariable(v.Name, v.Dims, cdfZero(enc.DType))
		if enc.DType == reshapr.Float32 && !enc.NoFill {
			h.AddAttribute(v.Name, "_FillValue", []float32{float32(math.NaN())})
		}
		for _, a := range v.Attrs {
			h.AddAttribute(v.Name, a.Name, cdfAttr(a.Value, enc.DType))
		}
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return nil, fmt.Errorf("ncf: invalid netCDF header for %s: %v", path, errs[0])
	}
	var hdr bytes.Buffer
	if err := h.WriteHeader(&hdr); err != nil {
		return nil, fmt.Errorf("ncf: %w", err)
	}
	if format == reshapr.NetCDF3Classic && hdr.Bytes()[3] != 1 {
		return nil, fmt.Errorf("ncf: %s is too large for the %s format", path, format)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("ncf: %w", err)
	}
	cf, err := cdf.Create(f, h)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ncf: creating %s: %w", path, err)
	}
	if format == reshapr.NetCDF3_64Bit && hdr.Bytes()[3] == 1 {
		b, err := offset64Header(hdr.Bytes())
		if err == nil {
			_, err = f.WriteAt(b, 0)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("ncf: writing 64-bit offset header to %s: %w", path, err)
		}
	}
	return &cdfSink{l: l, f: f, cf: cf}, nil
}

var errShortHeader = errors.New("truncated netCDF header")

// offset64Header converts an encoded CDF-1 header to the 64-bit offset
// format, in which variable offsets take 8 bytes. Header.Define lays out
// the variables for the longer header before it settles on CDF-1, so the
// converted header fits in front of the data.
func offset64Header(in []byte) ([]byte, error) {
	c := &hdrCopier{in: in}
	c.copy(3)
	c.out.WriteByte(2)
	c.pos++
	c.copy(4) // numrecs
	_, ndims := c.list()
	for i := int32(0); i < ndims; i++ {
		c.name()
		c.copy(4)
	}
	c.attrs()
	_, nvars := c.list()
	for i := int32(0); i < nvars; i++ {
		c.name()
		n := c.int32()
		c.copy(4 * int(n))
		c.attrs()
		c.copy(8) // nc_type and vsize
		begin := c.int32()
		if c.err == nil {
			c.out.Truncate(c.out.Len() - 4)
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(begin))
			c.out.Write(b[:])
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.out.Bytes(), nil
}

// hdrCopier copies the fields of an encoded netCDF header.
type hdrCopier struct {
	in  []byte
	pos int
	out bytes.Buffer
	err error
}

func (c *hdrCopier) copy(n int) {
	if c.err != nil {
		return
	}
	if n < 0 || c.pos+n > len(c.in) {
		c.err = errShortHeader
		return
	}
	c.out.Write(c.in[c.pos : c.pos+n])
	c.pos += n
}

func (c *hdrCopier) int32() int32 {
	c.copy(4)
	if c.err != nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(c.in[c.pos-4:]))
}

func (c *hdrCopier) list() (tag, n int32) {
	return c.int32(), c.int32()
}

func (c *hdrCopier) name() {
	c.copy(pad4(int(c.int32())))
}

func (c *hdrCopier) attrs() {
	_, n := c.list()
	for i := int32(0); i < n; i++ {
		c.name()
		t := c.int32()
		nelems := c.int32()
		c.copy(pad4(int(nelems) * typeSize(t)))
	}
}

// typeSize returns the size in bytes of a netCDF classic data type.
func typeSize(t int32) int {
	switch t {
	case 3: // short
		return 2
	case 4, 5: // int, float
		return 4
	case 6: // double
		return 8
	}
	return 1
}

func pad4(n int) int { return (n + 3) &^ 3 }

func cdfZero(t reshapr.DType) interface{} {
	if t == reshapr.Int32 {
		return []int32{0}
	}
	return []float32{0}
}

// cdfAttr converts an attribute value to a type that can be stored in a
// netCDF classic file. Floating point values take the type of the
// variable that they belong to.
func cdfAttr(v interface{}, t reshapr.DType) interface{} {
	switch a := v.(type) {
	case string:
		return a
	case float64:
		return cdfAttr([]float64{a}, t)
	case []float64:
		if t == reshapr.Int32 {
			return a
		}
		o := make([]float32, len(a))
		for i, x := range a {
			o[i] = float32(x)
		}
		return o
	case int:
		return []int32{int32(a)}
	case []int:
		o := make([]int32, len(a))
		for i, x := range a {
			o[i] = int32(x)
		}
		return o
	}
	return fmt.Sprint(v)
}

// write stores vals in variable name starting at the corner begin. The end
// corner lies past the written values so that a complete write does not
// report io.EOF.
func (s *cdfSink) write(name string, begin []int, t reshapr.DType, vals []float64) error {
	end := append([]int(nil), s.cf.Header.Lengths(name)...)
	if begin == nil {
		begin = make([]int, len(end))
	}
	if s.cf.Header.IsRecordVariable(name) {
		n := 1
		for _, x := range end[1:] {
			n *= x
		}
		end[0] = begin[0] + max(1, len(vals)/max(1, n))
	}
	w := s.cf.Writer(name, begin, end)
	var buf interface{}
	if t == reshapr.Int32 {
		b := make([]int32, len(vals))
		for i, v := range vals {
			b[i] = int32(v)
		}
		buf = b
	} else {
		b := make([]float32, len(vals))
		for i, v := range vals {
			b[i] = float32(v)
		}
		buf = b
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("ncf: writing %s: %w", name, err)
	}
	return nil
}

func (s *cdfSink) writeCoord(c *reshapr.Coordinate, vals []float64) error {
	return s.write(c.Name, nil, s.l.plan[c.Name].DType, vals)
}

func (s *cdfSink) writeStep(v *reshapr.ExtractedVariable, i int, vals []float64) error {
	var begin []int
	if s.l.stepped(v) {
		begin = make([]int, len(v.Dims))
		begin[0] = i
	}
	return s.write(v.Name, begin, s.l.plan[v.Name].DType, vals)
}

func (s *cdfSink) close() error {
	if s.l.unlimited != "" {
		if err := cdf.UpdateNumRecs(s.f); err != nil {
			s.f.Close()
			return fmt.Errorf("ncf: %w", err)
		}
	}
	return s.f.Close()
}
