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
	"fmt"
	"math"

	"github.com/scigolib/hdf5"
	"github.com/spatialmodel/reshapr"
)

// globalGroup holds the dataset attributes in netCDF-4 files. The HDF5
// writer cannot attach attributes to the root group.
const globalGroup = "global"

// hdf5Sink writes netCDF-4 files. Values are accumulated in memory and
// stored when the sink is closed, because datasets are written whole.
// Datasets use the contiguous layout: the HDF5 writer does not index the
// chunks of chunked datasets, so chunking, compression, and unlimited
// dimensions are not stored.
type hdf5Sink struct {
	l    *layout
	path string
	fw   *hdf5.FileWriter

	// dimIDs holds the position of each coordinate in the dataset.
	dimIDs map[string]int32

	coords map[string][]float64
	vars   map[string][]float64
}

func newHDF5Sink(path string, l *layout) (*hdf5Sink, error) {
	fw, err := hdf5.CreateForWrite(path, hdf5.CreateTruncate)
	if err != nil {
		return nil, fmt.Errorf("ncf: creating %s: %w", path, err)
	}
	s := &hdf5Sink{
		l:      l,
		path:   path,
		fw:     fw,
		dimIDs: make(map[string]int32),
		coords: make(map[string][]float64),
		vars:   make(map[string][]float64),
	}
	for i, c := range l.ds.Coords {
		s.dimIDs[c.Name] = int32(i)
	}
	for _, v := range l.ds.Vars {
		n := 1
		for _, x := range l.shape(v) {
			n *= x
		}
		s.vars[v.Name] = make([]float64, n)
	}
	return s, nil
}

func (s *hdf5Sink) writeCoord(c *reshapr.Coordinate, vals []float64) error {
	s.coords[c.Name] = vals
	return nil
}

func (s *hdf5Sink) writeStep(v *reshapr.ExtractedVariable, i int, vals []float64) error {
	n := s.l.stepSize(v)
	if len(vals) != n {
		return fmt.Errorf("ncf: variable %s: got %d values for a step of %d", v.Name, len(vals), n)
	}
	copy(s.vars[v.Name][i*n:], vals)
	return nil
}

func (s *hdf5Sink) close() error {
	err := s.store()
	if cerr := s.fw.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("ncf: closing %s: %w", s.path, cerr)
	}
	return err
}

func (s *hdf5Sink) store() error {
	for _, c := range s.l.ds.Coords {
		enc := s.l.plan[c.Name]
		attrs := append(reshapr.Attributes{
			{Name: "CLASS", Value: "DIMENSION_SCALE"},
			{Name: "NAME", Value: c.Name},
			{Name: "_Netcdf4Dimid", Value: s.dimIDs[c.Name]},
		}, coordAttrs(c, enc)...)
		if err := s.dataset(c.Name, []int{c.Len()}, enc, attrs, s.coords[c.Name]); err != nil {
			return err
		}
	}
	for _, v := range s.l.ds.Vars {
		enc := s.l.plan[v.Name]
		attrs := v.Attrs
		if enc.DType == reshapr.Float32 && !enc.NoFill {
			attrs = append(reshapr.Attributes{{Name: "_FillValue", Value: math.NaN()}}, attrs...)
		}
		ids := make([]int32, len(v.Dims))
		for i, d := range v.Dims {
			ids[i] = s.dimIDs[d]
		}
		attrs = append(reshapr.Attributes{{Name: "_Netcdf4Coordinates", Value: ids}}, attrs...)
		if err := s.dataset(v.Name, s.l.shape(v), enc, attrs, s.vars[v.Name]); err != nil {
			return err
		}
	}
	return s.global()
}

// dataset stores one coordinate or variable.
func (s *hdf5Sink) dataset(name string, shape []int, enc reshapr.Encoding, attrs reshapr.Attributes, vals []float64) error {
	udims := make([]uint64, len(shape))
	for i, n := range shape {
		udims[i] = uint64(n)
	}
	dtype := hdf5.Float32
	if enc.DType == reshapr.Int32 {
		dtype = hdf5.Int32
	}
	dw, err := s.fw.CreateDataset("/"+name, dtype, udims)
	if err != nil {
		return fmt.Errorf("ncf: creating %s in %s: %w", name, s.path, err)
	}
	if enc.DType == reshapr.Int32 {
		b := make([]int32, len(vals))
		for i, v := range vals {
			b[i] = int32(v)
		}
		err = dw.Write(b)
	} else {
		b := make([]float32, len(vals))
		for i, v := range vals {
			b[i] = float32(v)
		}
		err = dw.Write(b)
	}
	if err != nil {
		dw.Close()
		return fmt.Errorf("ncf: writing %s to %s: %w", name, s.path, err)
	}
	for _, a := range attrs {
		v := hdf5Attr(a.Value)
		if a.Name == "_FillValue" {
			v = float32(math.NaN())
		}
		if err := dw.WriteAttribute(a.Name, v); err != nil {
			dw.Close()
			return fmt.Errorf("ncf: attribute %s of %s: %w", a.Name, name, err)
		}
	}
	return dw.Close()
}

// global stores the dataset attributes.
func (s *hdf5Sink) global() error {
	g, err := s.fw.CreateGroup("/" + globalGroup)
	if err != nil {
		return fmt.Errorf("ncf: %w", err)
	}
	attrs := append(reshapr.Attributes(nil), s.l.ds.Attrs...)
	if s.l.unlimited != "" {
		attrs.Set("unlimited_dimension", s.l.unlimited)
	}
	for _, a := range attrs {
		if err := g.WriteAttribute(a.Name, hdf5Attr(a.Value)); err != nil {
			return fmt.Errorf("ncf: global attribute %s: %w", a.Name, err)
		}
	}
	return nil
}

// hdf5Attr converts an attribute value to a type that the HDF5 writer
// accepts.
func hdf5Attr(v interface{}) interface{} {
	switch a := v.(type) {
	case string, float64, []float64, int32, []int32:
		return a
	case int:
		return int64(a)
	case []int:
		o := make([]int64, len(a))
		for i, x := range a {
			o[i] = int64(x)
		}
		return o
	}
	return fmt.Sprint(v)
}
