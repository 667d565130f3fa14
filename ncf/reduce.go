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
	"sort"

	"github.com/spatialmodel/reshapr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// reduceFunc reduces the values of one time bucket to a single value.
type reduceFunc func(x []float64) float64

var reducers = map[reshapr.Aggregation]reduceFunc{
	reshapr.Mean: func(x []float64) float64 { return stat.Mean(x, nil) },
	reshapr.Sum:  floats.Sum,
	reshapr.Min:  floats.Min,
	reshapr.Max:  floats.Max,
	reshapr.Var:  popVariance,
	reshapr.Std:  func(x []float64) float64 { return math.Sqrt(popVariance(x)) },
	reshapr.Median: func(x []float64) float64 {
		s := make([]float64, len(x))
		copy(s, x)
		sort.Float64s(s)
		n := len(s)
		if n%2 == 0 {
			return (s[n/2-1] + s[n/2]) / 2
		}
		return stat.Quantile(0.5, stat.Empirical, s, nil)
	},
}

// popVariance is the variance normalized by the number of values.
func popVariance(x []float64) float64 {
	n := float64(len(x))
	if n == 1 {
		return 0
	}
	return stat.Variance(x, nil) * (n - 1) / n
}

// reducer returns the function for agg. Missing values are skipped. A
// bucket without values reduces to NaN, except for sums of buckets whose
// values are all missing, which are zero.
func reducer(agg reshapr.Aggregation) (reduceFunc, error) {
	if agg == "" {
		agg = reshapr.Mean
	}
	f, ok := reducers[agg]
	if !ok {
		return nil, fmt.Errorf("ncf: unsupported aggregation %q", agg)
	}
	return func(x []float64) float64 {
		if len(x) == 0 {
			return math.NaN()
		}
		if floats.HasNaN(x) {
			x = skipNaN(x)
			if len(x) == 0 {
				if agg == reshapr.Sum {
					return 0
				}
				return math.NaN()
			}
		}
		return f(x)
	}, nil
}

func skipNaN(x []float64) []float64 {
	o := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			o = append(o, v)
		}
	}
	return o
}
