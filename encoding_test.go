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

package reshapr

import (
	"reflect"
	"testing"

	"github.com/kr/pretty"
)

func TestTimeUnits(t *testing.T) {
	origin := NewDate(2007, 1, 1)
	for tb, want := range map[TimeBase]string{
		Hour:  "hours since 2007-01-01 00:30:00",
		Day:   "days since 2007-01-01 12:00:00",
		Month: "seconds since 2007-01-01 00:30:00",
		"":    "seconds since 2007-01-01 00:30:00",
	} {
		if have := TimeUnits(tb, origin); have != want {
			t.Errorf("%q: have %q, want %q", tb, have, want)
		}
	}
}

// salishDataset returns an extracted dataset with the full grid of the
// SalishSeaCast model.
func salishDataset() *ExtractedDataset {
	return &ExtractedDataset{
		Coords: []*Coordinate{
			{Name: "time", Axis: TimeAxis, Times: hourly(NewDate(2015, 1, 1), 24)},
			{Name: "depth", Axis: DepthAxis, Values: seq(40)},
			{Name: "gridY", Axis: YAxis, Values: seq(898)},
			{Name: "gridX", Axis: XAxis, Values: seq(398)},
		},
		Vars: []*ExtractedVariable{
			{Name: "votemper", Dims: []string{"time", "depth", "gridY", "gridX"}},
			{Name: "sossheig", Dims: []string{"time", "gridY", "gridX"}},
		},
		TimeBase: Hour,
	}
}

func TestPlanEncoding(t *testing.T) {
	ds := salishDataset()
	plan := PlanEncoding(ds, NewDate(2015, 1, 1), true)
	want := EncodingPlan{
		"time": {
			DType:      Float32,
			ChunkSizes: []int{1},
			Zlib:       true,
			NoFill:     true,
			Units:      "hours since 2015-01-01 00:30:00",
		},
		"depth":    {DType: Float32, ChunkSizes: []int{40}, Zlib: true},
		"gridY":    {DType: Int32, ChunkSizes: []int{898}, Zlib: true},
		"gridX":    {DType: Int32, ChunkSizes: []int{398}, Zlib: true},
		"votemper": {DType: Float32, ChunkSizes: []int{1, 40, 898, 398}, Zlib: true},
		"sossheig": {DType: Float32, ChunkSizes: []int{1, 898, 398}, Zlib: true},
	}
	if !reflect.DeepEqual(plan, want) {
		t.Error(pretty.Diff(plan, want))
	}
}

func TestPlanEncodingNoDeflate(t *testing.T) {
	plan := PlanEncoding(salishDataset(), NewDate(2015, 1, 1), false)
	for name, e := range plan {
		if e.Zlib {
			t.Errorf("%s is compressed", name)
		}
	}
}

func TestPlanEncodingClimatology(t *testing.T) {
	ds := salishDataset()
	ds.Coords[0] = &Coordinate{Name: "month", Values: []float64{1, 2, 3}}
	for _, v := range ds.Vars {
		v.Dims[0] = "month"
	}
	plan := PlanEncoding(ds, NewDate(2015, 1, 1), true)
	if have, want := plan["votemper"].ChunkSizes, []int{3, 40, 898, 398}; !reflect.DeepEqual(have, want) {
		t.Errorf("chunks: have %v, want %v", have, want)
	}
	if have := plan["month"].DType; have != Int32 {
		t.Errorf("month dtype: have %s, want %s", have, Int32)
	}
	if UnlimitedDim(ds) != "" {
		t.Error("a climatology has no unlimited dimension")
	}
	if UnlimitedDim(salishDataset()) != "time" {
		t.Error("time should be unlimited")
	}
}
