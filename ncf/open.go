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
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/reshapr"
)

// dataset is a set of netCDF files whose record variables are
// concatenated along the record dimension.
type dataset struct {
	eng   *Engine
	files []*ncFile

	// recStart holds the position of the first record of each file.
	recStart []int
	numRecs  int
	recDim   string

	dims     map[string]int
	vars     map[string]*reshapr.SourceVariable
	dataVars []string
}

// Open opens the files at paths as a single dataset. The variables and
// dimensions are those of the first file.
func (e *Engine) Open(ctx context.Context, paths []string, opts reshapr.OpenOptions) (reshapr.Dataset, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("ncf: no files to open")
	}
	files := make([]*ncFile, len(paths))
	open := func(ctx context.Context, i int) error {
		f, err := e.file(ctx, paths[i])
		if err != nil {
			return err
		}
		files[i] = f
		return nil
	}
	if opts.Parallel {
		if err := e.forEach(ctx, len(paths), open); err != nil {
			return nil, err
		}
	} else {
		for i := range paths {
			if err := open(ctx, i); err != nil {
				return nil, err
			}
		}
	}

	ds := &dataset{
		eng:      e,
		files:    files,
		recStart: make([]int, len(files)),
		dims:     make(map[string]int),
		vars:     make(map[string]*reshapr.SourceVariable),
	}
	h := files[0].header
	for i, d := range h.dims {
		if h.lengths[i] == 0 {
			ds.recDim = d
			continue
		}
		ds.dims[d] = h.lengths[i]
	}
	for i, f := range files {
		ds.recStart[i] = ds.numRecs
		ds.numRecs += f.numRecs
	}
	if ds.recDim != "" {
		ds.dims[ds.recDim] = ds.numRecs
	}

	drop := make(map[string]bool, len(opts.Drop))
	for _, v := range opts.Drop {
		drop[v] = true
	}
	for _, name := range h.vars {
		if drop[name] {
			continue
		}
		v := &reshapr.SourceVariable{
			Name:  name,
			Dims:  h.varDims[name],
			Attrs: append(reshapr.Attributes(nil), h.attrs[name]...),
		}
		for _, d := range v.Dims {
			v.Shape = append(v.Shape, ds.dims[d])
		}
		ds.vars[name] = v
		if !(len(v.Dims) == 1 && v.Dims[0] == name) {
			ds.dataVars = append(ds.dataVars, name)
		}
	}
	sort.Strings(ds.dataVars)
	e.Log.WithFields(logrus.Fields{
		"n_files":    len(files),
		"n_records":  ds.numRecs,
		"chunk_size": opts.Chunks,
		"n_dropped":  len(opts.Drop),
	}).Debug("opened dataset")
	return ds, nil
}

// attrValue converts a netCDF attribute value to a string, a float64, an
// int, or, for multiple values, a slice of those.
func attrValue(v interface{}) interface{} {
	switch a := v.(type) {
	case string:
		return a
	case []string:
		return strings.Join(a, "")
	case int32:
		return int(a)
	case int64:
		return int(a)
	case float32:
		return float64(a)
	case []int64:
		o := make([]int, len(a))
		for i, x := range a {
			o[i] = int(x)
		}
		return scalarInt(o)
	case []uint8:
		return string(a)
	case []int16:
		o := make([]int, len(a))
		for i, x := range a {
			o[i] = int(x)
		}
		return scalarInt(o)
	case []int32:
		o := make([]int, len(a))
		for i, x := range a {
			o[i] = int(x)
		}
		return scalarInt(o)
	case []float32:
		o := make([]float64, len(a))
		for i, x := range a {
			o[i] = float64(x)
		}
		return scalarFloat(o)
	case []float64:
		return scalarFloat(append([]float64(nil), a...))
	}
	return v
}

func scalarInt(v []int) interface{} {
	if len(v) == 1 {
		return v[0]
	}
	return v
}

func scalarFloat(v []float64) interface{} {
	if len(v) == 1 {
		return v[0]
	}
	return v
}

// attrFloat returns the first value of a numeric attribute.
func attrFloat(a reshapr.Attributes, name string) (float64, bool) {
	v, ok := a.Get(name)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case []float64:
		if len(x) > 0 {
			return x[0], true
		}
	case []int:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	}
	return 0, false
}

func (ds *dataset) DataVars() []string { return ds.dataVars }

func (ds *dataset) Variable(name string) (*reshapr.SourceVariable, bool) {
	v, ok := ds.vars[name]
	return v, ok
}

func (ds *dataset) CoordValues(name string) ([]float64, error) {
	v, ok := ds.vars[name]
	if !ok {
		n, ok := ds.dims[name]
		if !ok {
			return nil, fmt.Errorf("ncf: dataset has no coordinate %s", name)
		}
		o := make([]float64, n)
		for i := range o {
			o[i] = float64(i)
		}
		return o, nil
	}
	if len(v.Dims) != 1 {
		return nil, fmt.Errorf("ncf: coordinate %s has dimensions %v", name, v.Dims)
	}
	idx := make([]int, v.Shape[0])
	for i := range idx {
		idx[i] = i
	}
	a, err := ds.ReadSlab(context.Background(), name, [][]int{idx})
	if err != nil {
		return nil, err
	}
	return a.Elements, nil
}

// Times decodes a time coordinate. Record coordinates are decoded with
// the units of the file that each record comes from.
func (ds *dataset) Times(name string) ([]time.Time, error) {
	v, ok := ds.vars[name]
	if !ok {
		return nil, fmt.Errorf("ncf: dataset has no time coordinate %s", name)
	}
	cal, _ := v.Attrs.String("calendar")
	if err := checkCalendar(cal); err != nil {
		return nil, err
	}
	vals, err := ds.CoordValues(name)
	if err != nil {
		return nil, err
	}
	units := func(a reshapr.Attributes) (TimeUnits, error) {
		s, ok := a.String("units")
		if !ok {
			return TimeUnits{}, fmt.Errorf("ncf: time coordinate %s has no units", name)
		}
		return ParseTimeUnits(s)
	}
	o := make([]time.Time, len(vals))
	if len(v.Dims) == 0 || v.Dims[0] != ds.recDim {
		u, err := units(v.Attrs)
		if err != nil {
			return nil, err
		}
		for i, x := range vals {
			o[i] = u.Decode(x)
		}
		return o, nil
	}
	for i, f := range ds.files {
		u, err := units(f.attrs[name])
		if err != nil {
			return nil, fmt.Errorf("%v in %s", err, f.path)
		}
		for j := ds.recStart[i]; j < ds.recStart[i]+f.numRecs; j++ {
			o[j] = u.Decode(vals[j])
		}
	}
	return o, nil
}

// ReadSlab reads the elements of a variable at the given indices. Record
// variables are read one record at a time; other variables are read in
// one pass over the span of their outermost index.
func (ds *dataset) ReadSlab(ctx context.Context, name string, index [][]int) (*sparse.DenseArray, error) {
	v, ok := ds.vars[name]
	if !ok {
		return nil, fmt.Errorf("ncf: dataset has no variable %s", name)
	}
	if len(index) != len(v.Dims) {
		return nil, fmt.Errorf("ncf: variable %s has %d dimensions but %d indices were given", name, len(v.Dims), len(index))
	}
	for i, idx := range index {
		for _, j := range idx {
			if j < 0 || j >= v.Shape[i] {
				return nil, fmt.Errorf("ncf: index %d out of range for dimension %s of %s", j, v.Dims[i], name)
			}
		}
	}
	shape := make([]int, len(index))
	for i, idx := range index {
		shape[i] = len(idx)
	}
	out := sparse.ZerosDense(shape...)
	ds.eng.metrics.SlabsRead.WithLabelValues(name).Inc()
	if len(out.Elements) == 0 {
		return out, nil
	}
	scale := newScaler(v.Attrs)

	if len(v.Dims) > 0 && v.Dims[0] == ds.recDim {
		stride := len(out.Elements) / len(index[0])
		for i, rec := range index[0] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			f, local := ds.locate(rec)
			inner := out.Elements[i*stride : (i+1)*stride]
			if err := readGather(f, name, []int{local}, v.Shape[1:], index[1:], inner, scale); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if err := readGather(ds.files[0], name, nil, v.Shape, index, out.Elements, scale); err != nil {
		return nil, err
	}
	return out, nil
}

// locate returns the file that holds the record at position rec of the
// concatenated dataset, and the position of the record within that file.
func (ds *dataset) locate(rec int) (*ncFile, int) {
	i := sort.Search(len(ds.recStart), func(i int) bool { return ds.recStart[i] > rec }) - 1
	return ds.files[i], rec - ds.recStart[i]
}

func (ds *dataset) Close() error { return nil }

// readGather reads a hyperslab of variable name from f and copies the
// elements at index into dst. prefix holds fixed leading indices (the
// record number) and shape and index describe the remaining dimensions.
// The slab spans the selected range of the outermost remaining dimension
// and the full extent of the others.
func readGather(f *ncFile, name string, prefix, shape []int, index [][]int, dst []float64, scale scaler) error {
	begin := append(append([]int(nil), prefix...), make([]int, len(shape))...)
	end := append(append([]int(nil), prefix...), make([]int, len(shape))...)
	lo, hi := 0, 0
	if len(shape) > 0 {
		lo, hi = minMax(index[0])
		begin[len(prefix)] = lo
		end[len(prefix)] = hi
		for i := 1; i < len(shape); i++ {
			end[len(prefix)+i] = shape[i] - 1
		}
	}
	n := hi - lo + 1
	for _, s := range shape[min(1, len(shape)):] {
		n *= s
	}
	if _, ok := f.varDims[name]; !ok {
		return fmt.Errorf("ncf: %s has no variable %s", f.path, name)
	}
	vals, err := f.r.readSlab(name, begin, end)
	if err != nil {
		return fmt.Errorf("ncf: reading %s from %s: %w", name, f.path, err)
	}
	if len(vals) != n {
		return fmt.Errorf("ncf: reading %s from %s: got %d values, want %d", name, f.path, len(vals), n)
	}

	// Strides of the slab in memory.
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		if i == 0 {
			break
		}
		s *= shape[i]
	}
	pos := make([]int, len(index))
	for k := range dst {
		off := 0
		for i, p := range pos {
			j := index[i][p]
			if i == 0 {
				j -= lo
			}
			off += j * strides[i]
		}
		dst[k] = scale.apply(vals[off])
		// Advance the odometer.
		for i := len(pos) - 1; i >= 0; i-- {
			pos[i]++
			if pos[i] < len(index[i]) {
				break
			}
			pos[i] = 0
		}
	}
	return nil
}

func minMax(x []int) (lo, hi int) {
	lo, hi = x[0], x[0]
	for _, v := range x[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

// toFloat64 converts a buffer read from a netCDF file to float64s.
func toFloat64(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []int64:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []float32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int16:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []uint8:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(int8(v))
		}
		return o, nil
	}
	return nil, fmt.Errorf("unsupported data type %T", buf)
}

// scaler masks fill values and applies CF packing attributes.
type scaler struct {
	fill, missing       float64
	hasFill, hasMissing bool
	scale, offset       float64
}

func newScaler(a reshapr.Attributes) scaler {
	s := scaler{scale: 1}
	s.fill, s.hasFill = attrFloat(a, "_FillValue")
	s.missing, s.hasMissing = attrFloat(a, "missing_value")
	if v, ok := attrFloat(a, "scale_factor"); ok {
		s.scale = v
	}
	if v, ok := attrFloat(a, "add_offset"); ok {
		s.offset = v
	}
	return s
}

func (s scaler) apply(v float64) float64 {
	if (s.hasFill && v == s.fill) || (s.hasMissing && v == s.missing) {
		return math.NaN()
	}
	return v*s.scale + s.offset
}
