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
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/scigolib/hdf5"
	"github.com/spatialmodel/reshapr"
)

// hdf5Reader reads netCDF-4 files.
type hdf5Reader struct {
	mu       sync.Mutex
	f        *hdf5.File
	datasets map[string]*hdf5.Dataset
}

// hiddenAttrs are the HDF5 attributes that hold the netCDF-4 dimension
// model.
var hiddenAttrs = map[string]bool{
	"CLASS":               true,
	"NAME":                true,
	"DIMENSION_LIST":      true,
	"REFERENCE_LIST":      true,
	"_Netcdf4Dimid":       true,
	"_Netcdf4Coordinates": true,
	"_nc3_strict":         true,
	"_NCProperties":       true,
}

// h5Var is a dataset of a netCDF-4 file.
type h5Var struct {
	name  string
	shape []int
	attrs reshapr.Attributes

	// hidden holds the attributes of the dimension model.
	hidden map[string]interface{}
}

func (v *h5Var) isScale() bool {
	c, _ := v.hidden["CLASS"].(string)
	return c == "DIMENSION_SCALE" && len(v.shape) == 1
}

func openHDF5(path string) (*ncFile, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ncf: opening %s: %w", path, err)
	}
	nf, err := readHDF5Header(path, f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ncf: reading %s: %w", path, err)
	}
	return nf, nil
}

// readHDF5Header reads the netCDF data model of the datasets in the root
// group of f. Variable dimensions come from the _Netcdf4Coordinates
// attribute where it is present. Otherwise they are matched against the
// lengths of the dimension scales. The record dimension is the
// dimension scale that holds CF time values.
func readHDF5Header(path string, f *hdf5.File) (*ncFile, error) {
	r := &hdf5Reader{f: f, datasets: make(map[string]*hdf5.Dataset)}
	nf := &ncFile{
		path: path,
		header: header{
			varDims: make(map[string][]string),
			attrs:   make(map[string]reshapr.Attributes),
		},
		r: r,
	}
	root, err := f.Root().Attributes()
	if err != nil {
		return nil, err
	}
	var global reshapr.Attributes
	for _, a := range root {
		if v, err := a.ReadValue(); err == nil && !hiddenAttrs[a.Name] {
			global = append(global, reshapr.Attribute{Name: a.Name, Value: attrValue(v)})
		}
	}

	var vars []*h5Var
	for _, obj := range f.Root().Children() {
		switch o := obj.(type) {
		case *hdf5.Group:
			if strings.Trim(o.Name(), "/") != globalGroup {
				continue
			}
			as, err := o.Attributes()
			if err != nil {
				return nil, err
			}
			for _, a := range as {
				if v, err := a.ReadValue(); err == nil {
					global.Set(a.Name, attrValue(v))
				}
			}
		case *hdf5.Dataset:
			v := &h5Var{name: strings.Trim(o.Name(), "/"), hidden: make(map[string]interface{})}
			if v.shape, err = datasetShape(o); err != nil {
				return nil, fmt.Errorf("variable %s: %w", v.name, err)
			}
			as, err := o.Attributes()
			if err != nil {
				return nil, fmt.Errorf("variable %s: %w", v.name, err)
			}
			for _, a := range as {
				x, err := a.ReadValue()
				switch {
				case err != nil:
					// References and compound values hold no CF metadata.
				case hiddenAttrs[a.Name]:
					v.hidden[a.Name] = x
				default:
					v.attrs = append(v.attrs, reshapr.Attribute{Name: a.Name, Value: attrValue(x)})
				}
			}
			r.datasets[v.name] = o
			vars = append(vars, v)
		}
	}

	nf.attrs[""] = global

	var scales []*h5Var
	for _, v := range vars {
		if v.isScale() {
			scales = append(scales, v)
		}
	}
	sort.SliceStable(scales, func(i, j int) bool {
		return dimID(scales[i], len(vars)) < dimID(scales[j], len(vars))
	})
	byID := make(map[int]string)
	lengths := make(map[string]int)
	for _, s := range scales {
		nf.dims = append(nf.dims, s.name)
		nf.lengths = append(nf.lengths, s.shape[0])
		lengths[s.name] = s.shape[0]
		if id, ok := intAttr(s.hidden["_Netcdf4Dimid"]); ok {
			byID[id] = s.name
		}
	}
	for i, s := range scales {
		if u, ok := s.attrs.String("units"); ok && strings.Contains(u, " since ") {
			nf.numRecs = nf.lengths[i]
			nf.lengths[i] = 0
			break
		}
	}

	phony := make(map[int]string)
	for _, v := range vars {
		nf.vars = append(nf.vars, v.name)
		nf.attrs[v.name] = v.attrs
		if v.isScale() {
			nf.varDims[v.name] = []string{v.name}
			continue
		}
		dims := coordinateDims(v, byID)
		if dims == nil {
			dims = matchDims(v.shape, scales)
		}
		for i, d := range dims {
			if d != "" {
				continue
			}
			n := v.shape[i]
			if phony[n] == "" {
				phony[n] = fmt.Sprintf("phony_dim_%d", len(phony))
				nf.dims = append(nf.dims, phony[n])
				nf.lengths = append(nf.lengths, n)
				lengths[phony[n]] = n
			}
			dims[i] = phony[n]
		}
		for i, d := range dims {
			if lengths[d] != v.shape[i] {
				return nil, fmt.Errorf("variable %s has length %d along dimension %s of length %d",
					v.name, v.shape[i], d, lengths[d])
			}
		}
		nf.varDims[v.name] = dims
	}
	return nf, nil
}

// dimID returns the netCDF dimension ID of a dimension scale, or missing
// if it has none.
func dimID(v *h5Var, missing int) int {
	if id, ok := intAttr(v.hidden["_Netcdf4Dimid"]); ok {
		return id
	}
	return missing
}

// coordinateDims returns the dimensions listed by the _Netcdf4Coordinates
// attribute of v, or nil if they are not known.
func coordinateDims(v *h5Var, byID map[int]string) []string {
	ids, ok := v.hidden["_Netcdf4Coordinates"]
	if !ok {
		return nil
	}
	var list []int
	switch x := ids.(type) {
	case []int32:
		for _, id := range x {
			list = append(list, int(id))
		}
	default:
		id, ok := intAttr(x)
		if !ok {
			return nil
		}
		list = []int{id}
	}
	if len(list) != len(v.shape) {
		return nil
	}
	dims := make([]string, len(list))
	for i, id := range list {
		if dims[i], ok = byID[id]; !ok {
			return nil
		}
	}
	return dims
}

// matchDims assigns dimension scales to the axes of shape, working inward
// from the innermost axis so that variables share their trailing spatial
// dimensions. Axes without a matching scale get an empty name.
func matchDims(shape []int, scales []*h5Var) []string {
	dims := make([]string, len(shape))
	next := len(scales)
	for i := len(shape) - 1; i >= 0; i-- {
		for j := next - 1; j >= 0; j-- {
			if scales[j].shape[0] == shape[i] {
				dims[i] = scales[j].name
				next = j
				break
			}
		}
	}
	return dims
}

func intAttr(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	}
	return 0, false
}

var dataspaceRE = regexp.MustCompile(`\d+D array \[([0-9x ]*)\]`)

// datasetShape returns the dimensions of a dataset from its description.
func datasetShape(d *hdf5.Dataset) ([]int, error) {
	info, err := d.Info()
	if err != nil {
		return nil, err
	}
	m := dataspaceRE.FindStringSubmatch(info)
	if m == nil {
		if strings.Contains(info, "scalar") {
			return nil, nil
		}
		return nil, fmt.Errorf("unsupported dataspace in %q", info)
	}
	var shape []int
	for _, f := range strings.Fields(m[1]) {
		if f == "x" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("unsupported dataspace in %q", info)
		}
		shape = append(shape, n)
	}
	return shape, nil
}

func (r *hdf5Reader) readSlab(name string, begin, end []int) ([]float64, error) {
	d, ok := r.datasets[name]
	if !ok {
		return nil, fmt.Errorf("no variable %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(begin) == 0 {
		return d.Read()
	}
	start := make([]uint64, len(begin))
	count := make([]uint64, len(begin))
	for i := range begin {
		start[i] = uint64(begin[i])
		count[i] = uint64(end[i] - begin[i] + 1)
	}
	buf, err := d.ReadSlice(start, count)
	if err != nil {
		return nil, err
	}
	return toFloat64(buf)
}

func (r *hdf5Reader) Close() error { return r.f.Close() }
