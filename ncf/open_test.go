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
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/reshapr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	nDepth      = 3
	nY          = 4
	nX          = 5
	recsPerFile = 2
	fillValue   = -999
)

// temperature returns the value of the test variable at a position in
// the concatenated fixture files.
func temperature(rec, d, y, x int) float64 {
	return float64(rec*1000 + d*100 + y*10 + x)
}

// writeFixture writes a model results file holding records
// [first, first+recsPerFile) of the test dataset. The first element of
// record 3 is a fill value.
func writeFixture(t *testing.T, path string, first int) {
	t.Helper()
	h := cdf.NewHeader(
		[]string{"time_counter", "deptht", "y", "x"},
		[]int{0, nDepth, nY, nX})
	h.AddVariable("time_counter", []string{"time_counter"}, []float64{0})
	h.AddAttribute("time_counter", "units", "hours since 2015-01-01 00:00:00")
	h.AddAttribute("time_counter", "calendar", "gregorian")
	h.AddVariable("deptht", []string{"deptht"}, []float32{0})
	h.AddAttribute("deptht", "units", "m")
	h.AddVariable("nav_lon", []string{"y", "x"}, []float32{0})
	h.AddVariable("votemper", []string{"time_counter", "deptht", "y", "x"}, []float32{0})
	h.AddAttribute("votemper", "_FillValue", []float32{fillValue})
	h.AddAttribute("votemper", "standard_name", "sea_water_conservative_temperature")
	h.AddAttribute("votemper", "long_name", "Conservative Temperature")
	h.AddAttribute("votemper", "units", "degC")
	h.AddAttribute("", "name", "fixture")
	h.Define()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	ff, err := cdf.Create(f, h)
	require.NoError(t, err)

	times := make([]float64, recsPerFile)
	temp := make([]float32, 0, recsPerFile*nDepth*nY*nX)
	for r := 0; r < recsPerFile; r++ {
		rec := first + r
		times[r] = float64(rec) + 0.5
		for d := 0; d < nDepth; d++ {
			for y := 0; y < nY; y++ {
				for x := 0; x < nX; x++ {
					v := float32(temperature(rec, d, y, x))
					if rec == 3 && d == 0 && y == 0 && x == 0 {
						v = fillValue
					}
					temp = append(temp, v)
				}
			}
		}
	}
	lons := make([]float32, nY*nX)
	for i := range lons {
		lons[i] = -123 + float32(i)/100
	}
	_, err = ff.Writer("time_counter", nil, nil).Write(times)
	require.NoError(t, err)
	_, err = ff.Writer("deptht", []int{0}, h.Lengths("deptht")).Write([]float32{0.5, 1.5, 2.5})
	require.NoError(t, err)
	_, err = ff.Writer("nav_lon", []int{0, 0}, h.Lengths("nav_lon")).Write(lons)
	require.NoError(t, err)
	_, err = ff.Writer("votemper", nil, nil).Write(temp)
	require.NoError(t, err)
	require.NoError(t, cdf.UpdateNumRecs(f))
}

// fixtures writes two consecutive fixture files and returns their paths.
func fixtures(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "SalishSea_1h_20150101_20150101_grid_T.nc"),
		filepath.Join(dir, "SalishSea_1h_20150102_20150102_grid_T.nc"),
	}
	for i, p := range paths {
		writeFixture(t, p, i*recsPerFile)
	}
	return paths
}

func openFixtures(t *testing.T, opts reshapr.OpenOptions) (*Engine, reshapr.Dataset) {
	t.Helper()
	eng := NewEngine(NewSemaphore(2))
	t.Cleanup(func() { eng.Close() })
	ds, err := eng.Open(context.Background(), fixtures(t), opts)
	require.NoError(t, err)
	return eng, ds
}

func TestOpen(t *testing.T) {
	_, ds := openFixtures(t, reshapr.OpenOptions{Parallel: true})

	assert.Equal(t, []string{"nav_lon", "votemper"}, ds.DataVars())

	v, ok := ds.Variable("votemper")
	require.True(t, ok)
	assert.Equal(t, []string{"time_counter", "deptht", "y", "x"}, v.Dims)
	assert.Equal(t, []int{2 * recsPerFile, nDepth, nY, nX}, v.Shape)
	units, _ := v.Attrs.String("units")
	assert.Equal(t, "degC", units)

	times, err := ds.Times("time_counter")
	require.NoError(t, err)
	want := []time.Time{
		time.Date(2015, 1, 1, 0, 30, 0, 0, time.UTC),
		time.Date(2015, 1, 1, 1, 30, 0, 0, time.UTC),
		time.Date(2015, 1, 1, 2, 30, 0, 0, time.UTC),
		time.Date(2015, 1, 1, 3, 30, 0, 0, time.UTC),
	}
	assert.Equal(t, want, times)

	depths, err := ds.CoordValues("deptht")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5, 2.5}, depths)

	// y has no coordinate variable.
	ys, err := ds.CoordValues("y")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3}, ys)

	_, err = ds.CoordValues("z")
	assert.Error(t, err)
}

func TestOpenDrop(t *testing.T) {
	_, ds := openFixtures(t, reshapr.OpenOptions{Drop: []string{"nav_lon"}})
	assert.Equal(t, []string{"votemper"}, ds.DataVars())
	_, ok := ds.Variable("nav_lon")
	assert.False(t, ok)
}

func TestOpenMissingFile(t *testing.T) {
	eng := NewEngine(nil)
	defer eng.Close()
	_, err := eng.Open(context.Background(), []string{filepath.Join(t.TempDir(), "nope.nc")}, reshapr.OpenOptions{})
	assert.Error(t, err)
}

func TestReadSlab(t *testing.T) {
	_, ds := openFixtures(t, reshapr.OpenOptions{})
	ctx := context.Background()

	t.Run("across files", func(t *testing.T) {
		index := [][]int{{1, 2}, {0, 2}, {3}, {1, 4}}
		a, err := ds.ReadSlab(ctx, "votemper", index)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2, 1, 2}, a.Shape)
		var want []float64
		for _, r := range index[0] {
			for _, d := range index[1] {
				for _, y := range index[2] {
					for _, x := range index[3] {
						want = append(want, temperature(r, d, y, x))
					}
				}
			}
		}
		assert.Equal(t, want, a.Elements)
	})
	t.Run("fill value", func(t *testing.T) {
		a, err := ds.ReadSlab(ctx, "votemper", [][]int{{3}, {0}, {0}, {0, 1}})
		require.NoError(t, err)
		assert.True(t, math.IsNaN(a.Elements[0]))
		assert.Equal(t, temperature(3, 0, 0, 1), a.Elements[1])
	})
	t.Run("non-record", func(t *testing.T) {
		a, err := ds.ReadSlab(ctx, "nav_lon", [][]int{{2, 3}, {0}})
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{-123 + 0.10, -123 + 0.15}, a.Elements, 1e-4)
	})
	t.Run("out of range", func(t *testing.T) {
		_, err := ds.ReadSlab(ctx, "votemper", [][]int{{4}, {0}, {0}, {0}})
		assert.Error(t, err)
	})
	t.Run("wrong rank", func(t *testing.T) {
		_, err := ds.ReadSlab(ctx, "votemper", [][]int{{0}})
		assert.Error(t, err)
	})
}

func TestFileCache(t *testing.T) {
	paths := fixtures(t)
	eng := NewEngine(nil)
	defer eng.Close()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := eng.Open(ctx, paths, reshapr.OpenOptions{})
		require.NoError(t, err)
	}
	eng.mu.Lock()
	n := len(eng.opened)
	eng.mu.Unlock()
	assert.Equal(t, len(paths), n)
}
