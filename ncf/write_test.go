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
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/scigolib/hdf5"
	"github.com/spatialmodel/reshapr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	selDepth = []int{0, 2}
	selY     = []int{0, 1, 2, 3}
	selX     = []int{0, 2, 4}
)

// extracted returns a dataset that selects every source record, depths 0
// and 2, and every other x index of the fixture files.
func extracted(t *testing.T, ds reshapr.Dataset) *reshapr.ExtractedDataset {
	t.Helper()
	times, err := ds.Times("time_counter")
	require.NoError(t, err)
	return &reshapr.ExtractedDataset{
		Coords: []*reshapr.Coordinate{
			{Name: "time", Axis: reshapr.TimeAxis, Source: "time_counter", Indices: []int{0, 1, 2, 3}, Times: times,
				Attrs: reshapr.Attributes{{Name: "standard_name", Value: "time"}}},
			{Name: "depth", Axis: reshapr.DepthAxis, Source: "deptht", Indices: selDepth, Values: []float64{0.5, 2.5},
				Attrs: reshapr.Attributes{{Name: "units", Value: "metres"}}},
			{Name: "gridY", Axis: reshapr.YAxis, Source: "y", Indices: selY, Values: []float64{0, 1, 2, 3}},
			{Name: "gridX", Axis: reshapr.XAxis, Source: "x", Indices: selX, Values: []float64{0, 2, 4}},
		},
		Vars: []*reshapr.ExtractedVariable{
			{
				Name: "votemper", Source: "votemper", Dataset: ds,
				Dims:  []string{"time", "depth", "gridY", "gridX"},
				Index: [][]int{{0, 1, 2, 3}, selDepth, selY, selX},
				Attrs: reshapr.Attributes{{Name: "units", Value: "degC"}},
			},
			{
				Name: "longitude", Source: "nav_lon", Dataset: ds,
				Dims:  []string{"gridY", "gridX"},
				Index: [][]int{selY, selX},
			},
		},
		Attrs:    reshapr.Attributes{{Name: "name", Value: "test"}, {Name: "Conventions", Value: "CF-1.6"}},
		TimeBase: reshapr.Hour,
	}
}

var origin = reshapr.NewDate(2015, 1, 1)

// readCDF reads the first n elements of a variable from a netCDF classic
// file.
func readCDF(t *testing.T, f *cdf.File, name string, n int) interface{} {
	t.Helper()
	end := append([]int(nil), f.Header.Lengths(name)...)
	require.NotNil(t, end, name)
	if f.Header.IsRecordVariable(name) {
		inner := 1
		for _, x := range end[1:] {
			inner *= x
		}
		end[0] = n / inner
	}
	for i := range end {
		end[i]--
	}
	r := f.Reader(name, make([]int, len(end)), end)
	buf := r.Zero(n)
	_, err := r.Read(buf)
	require.NoError(t, err)
	return buf
}

func TestWriteCDF(t *testing.T) {
	eng, ds := openFixtures(t, reshapr.OpenOptions{})
	eds := extracted(t, ds)
	plan := reshapr.PlanEncoding(eds, origin, true)
	path := filepath.Join(t.TempDir(), "out.nc")
	require.NoError(t, eng.Write(context.Background(), eds, path, plan, reshapr.NetCDF3_64Bit, "time"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	ff, err := cdf.Open(f)
	require.NoError(t, err)
	fi, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(4), ff.Header.NumRecs(fi.Size()))

	assert.Equal(t, []string{"time", "depth", "gridY", "gridX"}, ff.Header.Dimensions("votemper"))
	assert.Equal(t, []int{0, 2, 4, 3}, ff.Header.Lengths("votemper"))
	assert.Equal(t, "hours since 2015-01-01 00:30:00", ff.Header.GetAttribute("time", "units"))
	assert.Equal(t, "CF-1.6", ff.Header.GetAttribute("", "Conventions"))
	assert.Nil(t, ff.Header.GetAttribute("time", "_FillValue"))
	fill := ff.Header.GetAttribute("votemper", "_FillValue").([]float32)
	assert.True(t, math.IsNaN(float64(fill[0])))

	assert.Equal(t, []float32{0, 1, 2, 3}, readCDF(t, ff, "time", 4))
	assert.Equal(t, []int32{0, 2, 4}, readCDF(t, ff, "gridX", 3))

	temp := readCDF(t, ff, "votemper", 4*2*4*3).([]float32)
	i := 0
	for r := 0; r < 4; r++ {
		for _, d := range selDepth {
			for _, y := range selY {
				for _, x := range selX {
					if r == 3 && d == 0 && y == 0 && x == 0 {
						assert.True(t, math.IsNaN(float64(temp[i])))
					} else {
						assert.Equal(t, float32(temperature(r, d, y, x)), temp[i], "r=%d d=%d y=%d x=%d", r, d, y, x)
					}
					i++
				}
			}
		}
	}
}

func TestWriteCDFResampled(t *testing.T) {
	eng, ds := openFixtures(t, reshapr.OpenOptions{})
	eds := extracted(t, ds)
	eds.Coords[0].Times = []time.Time{
		time.Date(2015, 1, 1, 1, 0, 0, 0, time.UTC),
		time.Date(2015, 1, 1, 3, 0, 0, 0, time.UTC),
		time.Date(2015, 1, 1, 5, 0, 0, 0, time.UTC),
	}
	eds.Aggregate = &reshapr.Aggregate{
		Kind:    reshapr.Resample,
		Reducer: reshapr.Max,
		Dim:     "time",
		Buckets: [][]int{{0, 1}, {2, 3}, nil},
	}
	plan := reshapr.PlanEncoding(eds, origin, false)
	path := filepath.Join(t.TempDir(), "out.nc")
	require.NoError(t, eng.Write(context.Background(), eds, path, plan, reshapr.NetCDF3Classic, "time"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	ff, err := cdf.Open(f)
	require.NoError(t, err)

	n := 2 * 4 * 3
	temp := readCDF(t, ff, "votemper", 3*n).([]float32)
	// Depth 2, y 1, x 2.
	j := 1*4*3 + 1*3 + 1
	assert.Equal(t, float32(temperature(1, 2, 1, 2)), temp[j])
	assert.Equal(t, float32(temperature(3, 2, 1, 2)), temp[n+j])
	assert.True(t, math.IsNaN(float64(temp[2*n+j])), "empty bucket")
	// The fill value is skipped when its bucket is reduced.
	assert.Equal(t, float32(temperature(2, 0, 0, 0)), temp[n])
}

func TestWriteCDFFormats(t *testing.T) {
	for _, tc := range []struct {
		format  reshapr.Format
		version byte
	}{
		{reshapr.NetCDF3Classic, 1},
		{reshapr.NetCDF3_64Bit, 2},
	} {
		t.Run(string(tc.format), func(t *testing.T) {
			eng, ds := openFixtures(t, reshapr.OpenOptions{})
			eds := extracted(t, ds)
			plan := reshapr.PlanEncoding(eds, origin, false)
			path := filepath.Join(t.TempDir(), "out.nc")
			require.NoError(t, eng.Write(context.Background(), eds, path, plan, tc.format, ""))

			b, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, []byte{'C', 'D', 'F', tc.version}, b[:4])

			// Files without a record dimension are read back through the
			// engine.
			oe := NewEngine(nil)
			defer oe.Close()
			out, err := oe.Open(context.Background(), []string{path}, reshapr.OpenOptions{})
			require.NoError(t, err)
			a, err := out.ReadSlab(context.Background(), "votemper", [][]int{{1}, {1}, {2}, {0, 2}})
			require.NoError(t, err)
			assert.Equal(t, []float64{temperature(1, 2, 2, 0), temperature(1, 2, 2, 4)}, a.Elements)
			lons, err := out.ReadSlab(context.Background(), "longitude", [][]int{{3}, {2}})
			require.NoError(t, err)
			assert.InDelta(t, -123+float64(3*nX+4)/100, lons.Elements[0], 1e-5)
		})
	}
}

func TestOffset64Header(t *testing.T) {
	h := cdf.NewHeader([]string{"time", "x"}, []int{0, 3})
	h.AddAttribute("", "title", "odd length")
	h.AddVariable("x", []string{"x"}, []int32{0})
	h.AddAttribute("x", "valid_range", []int32{0, 2})
	h.AddVariable("v", []string{"time", "x"}, []float32{0})
	h.AddAttribute("v", "scale_factor", []float64{0.5})
	h.AddAttribute("v", "flag", []uint8{1, 2, 3})
	h.Define()
	var v1 bytes.Buffer
	require.NoError(t, h.WriteHeader(&v1))
	require.Equal(t, byte(1), v1.Bytes()[3])

	b, err := offset64Header(v1.Bytes())
	require.NoError(t, err)
	assert.Equal(t, byte(2), b[3])
	assert.Equal(t, v1.Len()+2*4, len(b))

	h2, err := cdf.ReadHeader(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "v"}, h2.Variables())
	assert.Equal(t, []int{0, 3}, h2.Lengths("v"))
	assert.Equal(t, "odd length", h2.GetAttribute("", "title"))
	assert.Equal(t, []int32{0, 2}, h2.GetAttribute("x", "valid_range"))
	assert.Equal(t, []uint8{1, 2, 3}, h2.GetAttribute("v", "flag"))

	_, err = offset64Header(v1.Bytes()[:v1.Len()-3])
	assert.Error(t, err)
}

func TestWriteHDF5(t *testing.T) {
	eng, ds := openFixtures(t, reshapr.OpenOptions{})
	eds := extracted(t, ds)
	plan := reshapr.PlanEncoding(eds, origin, true)
	path := filepath.Join(t.TempDir(), "out.nc")
	require.NoError(t, eng.Write(context.Background(), eds, path, plan, reshapr.NetCDF4, "time"))

	f, err := hdf5.Open(path)
	require.NoError(t, err)
	defer f.Close()
	found := make(map[string]*hdf5.Dataset)
	var global *hdf5.Group
	for _, obj := range f.Root().Children() {
		switch o := obj.(type) {
		case *hdf5.Dataset:
			found[o.Name()] = o
		case *hdf5.Group:
			if o.Name() == globalGroup {
				global = o
			}
		}
	}
	for _, name := range []string{"time", "depth", "gridY", "gridX", "votemper", "longitude"} {
		assert.Contains(t, found, name)
	}
	assert.NotContains(t, found, globalGroup)

	depth, err := found["depth"].Read()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 2.5}, depth, 1e-6)
	class, err := found["depth"].ReadAttribute("CLASS")
	require.NoError(t, err)
	assert.Equal(t, "DIMENSION_SCALE", class)

	temp, err := found["votemper"].Read()
	require.NoError(t, err)
	require.Len(t, temp, 4*2*4*3)
	assert.Equal(t, temperature(0, 0, 0, 2), temp[1])
	assert.Equal(t, temperature(2, 2, 3, 4), temp[2*24+23])
	assert.True(t, math.IsNaN(temp[3*24]))

	require.NotNil(t, global)
	attrs, err := global.Attributes()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, a := range attrs {
		names[a.Name] = true
	}
	assert.True(t, names["Conventions"])
	assert.True(t, names["unlimited_dimension"])
}

func TestOpenHDF5(t *testing.T) {
	eng, ds := openFixtures(t, reshapr.OpenOptions{})
	eds := extracted(t, ds)
	plan := reshapr.PlanEncoding(eds, origin, true)
	path := filepath.Join(t.TempDir(), "out.nc")
	require.NoError(t, eng.Write(context.Background(), eds, path, plan, reshapr.NetCDF4, "time"))

	oe := NewEngine(nil)
	defer oe.Close()
	out, err := oe.Open(context.Background(), []string{path}, reshapr.OpenOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"longitude", "votemper"}, out.DataVars())

	v, ok := out.Variable("votemper")
	require.True(t, ok)
	assert.Equal(t, []string{"time", "depth", "gridY", "gridX"}, v.Dims)
	assert.Equal(t, []int{4, 2, 4, 3}, v.Shape)
	units, _ := v.Attrs.String("units")
	assert.Equal(t, "degC", units)
	_, ok = v.Attrs.Get("_Netcdf4Coordinates")
	assert.False(t, ok)

	times, err := out.Times("time")
	require.NoError(t, err)
	assert.Equal(t, eds.Coords[0].Times, times)

	a, err := out.ReadSlab(context.Background(), "votemper", [][]int{{1, 3}, {1}, {2}, {0, 2}})
	require.NoError(t, err)
	assert.Equal(t, []float64{
		temperature(1, 2, 2, 0), temperature(1, 2, 2, 4),
		temperature(3, 2, 2, 0), temperature(3, 2, 2, 4),
	}, a.Elements)
	lons, err := out.ReadSlab(context.Background(), "longitude", [][]int{{3}, {2}})
	require.NoError(t, err)
	assert.InDelta(t, -123+float64(3*nX+4)/100, lons.Elements[0], 1e-5)
}

func TestMatchDims(t *testing.T) {
	scales := []*h5Var{
		{name: "time_counter", shape: []int{24}},
		{name: "deptht", shape: []int{40}},
		{name: "y", shape: []int{24}},
		{name: "x", shape: []int{398}},
	}
	for _, test := range []struct {
		shape []int
		want  []string
	}{
		{[]int{24, 40, 24, 398}, []string{"time_counter", "deptht", "y", "x"}},
		{[]int{24, 398}, []string{"y", "x"}},
		{[]int{24, 24, 398}, []string{"time_counter", "y", "x"}},
		{[]int{7, 398}, []string{"", "x"}},
	} {
		assert.Equal(t, test.want, matchDims(test.shape, scales), "%v", test.shape)
	}
}

func TestCoordinateDims(t *testing.T) {
	byID := map[int]string{0: "time", 1: "depth", 2: "gridY"}
	v := &h5Var{shape: []int{4, 2}, hidden: map[string]interface{}{"_Netcdf4Coordinates": []int32{0, 2}}}
	assert.Equal(t, []string{"time", "gridY"}, coordinateDims(v, byID))
	v.hidden["_Netcdf4Coordinates"] = []int32{0, 5}
	assert.Nil(t, coordinateDims(v, byID))
	v.shape = []int{4}
	v.hidden["_Netcdf4Coordinates"] = int32(1)
	assert.Equal(t, []string{"depth"}, coordinateDims(v, byID))
}

func TestWriteBadLayout(t *testing.T) {
	eng, ds := openFixtures(t, reshapr.OpenOptions{})
	eds := extracted(t, ds)
	plan := reshapr.PlanEncoding(eds, origin, true)
	delete(plan, "votemper")
	err := eng.Write(context.Background(), eds, filepath.Join(t.TempDir(), "out.nc"), plan, reshapr.NetCDF4, "time")
	assert.Error(t, err)
}

func TestWriteMetrics(t *testing.T) {
	eng, ds := openFixtures(t, reshapr.OpenOptions{})
	eds := extracted(t, ds)
	plan := reshapr.PlanEncoding(eds, origin, true)
	require.NoError(t, eng.Write(context.Background(), eds, filepath.Join(t.TempDir(), "out.nc"), plan, reshapr.NetCDF3_64Bit, "time"))

	path := filepath.Join(t.TempDir(), "reshapr.prom")
	require.NoError(t, eng.WriteMetrics(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "reshapr_files_opened_total 2")
	assert.Contains(t, string(b), "reshapr_write_duration_seconds_count{format=\"NETCDF3_64BIT\"} 1")
}
