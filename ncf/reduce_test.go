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
	"math"
	"testing"

	"github.com/spatialmodel/reshapr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReducers(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	tests := []struct {
		agg  reshapr.Aggregation
		x    []float64
		want float64
	}{
		{reshapr.Mean, x, 2.5},
		{"", x, 2.5},
		{reshapr.Sum, x, 10},
		{reshapr.Min, x, 1},
		{reshapr.Max, x, 4},
		{reshapr.Var, x, 1.25},
		{reshapr.Std, x, math.Sqrt(1.25)},
		{reshapr.Median, x, 2.5},
		{reshapr.Median, []float64{5, 1, 3}, 3},
		{reshapr.Var, []float64{7}, 0},
	}
	for _, test := range tests {
		t.Run(string(test.agg), func(t *testing.T) {
			f, err := reducer(test.agg)
			require.NoError(t, err)
			assert.InDelta(t, test.want, f(test.x), 1e-12)
		})
	}
}

func TestReducersMissing(t *testing.T) {
	nan := math.NaN()
	want := map[reshapr.Aggregation]float64{
		reshapr.Mean:   2,
		reshapr.Sum:    4,
		reshapr.Min:    1,
		reshapr.Max:    3,
		reshapr.Var:    1,
		reshapr.Std:    1,
		reshapr.Median: 2,
	}
	for _, agg := range reshapr.Aggregations {
		f, err := reducer(agg)
		require.NoError(t, err)
		assert.InDelta(t, want[agg], f([]float64{1, nan, 3}), 1e-12, "%s skips NaN", agg)
		assert.True(t, math.IsNaN(f(nil)), "%s of empty bucket", agg)
		if agg == reshapr.Sum {
			assert.Equal(t, 0.0, f([]float64{nan, nan}))
		} else {
			assert.True(t, math.IsNaN(f([]float64{nan, nan})), "%s of missing values", agg)
		}
	}
}

func TestReducerUnknown(t *testing.T) {
	_, err := reducer("mode")
	assert.Error(t, err)
}
