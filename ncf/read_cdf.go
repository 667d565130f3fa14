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
	"os"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/reshapr"
)

// cdfReader reads netCDF classic files.
type cdfReader struct {
	f  *os.File
	cf *cdf.File
}

func openCDF(path string) (*ncFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ncf: %w", err)
	}
	cf, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ncf: opening %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ncf: %w", err)
	}
	h := cf.Header
	nf := &ncFile{
		path:    path,
		numRecs: int(h.NumRecs(fi.Size())),
		header: header{
			dims:    h.Dimensions(""),
			lengths: h.Lengths(""),
			vars:    h.Variables(),
			varDims: make(map[string][]string),
			attrs:   map[string]reshapr.Attributes{"": cdfAttrs(h, "")},
		},
		r: &cdfReader{f: f, cf: cf},
	}
	for _, v := range nf.vars {
		nf.varDims[v] = h.Dimensions(v)
		nf.attrs[v] = cdfAttrs(h, v)
	}
	return nf, nil
}

func cdfAttrs(h *cdf.Header, v string) reshapr.Attributes {
	var a reshapr.Attributes
	for _, name := range h.Attributes(v) {
		a = append(a, reshapr.Attribute{Name: name, Value: attrValue(h.GetAttribute(v, name))})
	}
	return a
}

func (r *cdfReader) readSlab(name string, begin, end []int) ([]float64, error) {
	n := 1
	for i := range begin {
		n *= end[i] - begin[i] + 1
	}
	s := r.cf.Reader(name, begin, end)
	buf := s.Zero(n)
	if _, err := s.Read(buf); err != nil {
		return nil, err
	}
	return toFloat64(buf)
}

func (r *cdfReader) Close() error { return r.f.Close() }
