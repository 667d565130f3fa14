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

import "fmt"

// DType is the on-disk element type of a variable.
type DType string

// These are the element types used in extracted datasets.
const (
	Float32 DType = "float32"
	Int32   DType = "int32"
)

// Encoding holds the on-disk storage parameters of one coordinate or
// variable.
type Encoding struct {
	DType      DType
	ChunkSizes []int
	Zlib       bool

	// NoFill disables the fill value that writers would otherwise add to
	// floating point variables.
	NoFill bool

	// Units is the CF units of a time coordinate, e.g.
	// "hours since 2015-01-01 00:30:00".
	Units string
}

// EncodingPlan holds the encodings of the coordinates and variables of an
// extracted dataset, keyed by output name.
type EncodingPlan map[string]Encoding

// TimeUnits returns the CF units string of time values for the time base,
// relative to origin.
func TimeUnits(tb TimeBase, origin Date) string {
	quanta, offset := timeQuanta(tb)
	return fmt.Sprintf("%s since %s %s", quanta, origin, offset)
}

// PlanEncoding returns the encoding of every coordinate and variable of ds.
// Time is single precision with chunks of one and no fill value; depth is
// single precision in one chunk; other coordinates are integers in one
// chunk. Variables are single precision, chunked with one element along
// the time axis and the full extent along their other axes, in the order
// of their dimensions.
func PlanEncoding(ds *ExtractedDataset, origin Date, zlib bool) EncodingPlan {
	plan := make(EncodingPlan, len(ds.Coords)+len(ds.Vars))
	var timeDim string
	for _, c := range ds.Coords {
		switch c.Axis {
		case TimeAxis:
			timeDim = c.Name
			plan[c.Name] = Encoding{
				DType:      Float32,
				ChunkSizes: []int{1},
				Zlib:       zlib,
				NoFill:     true,
				Units:      TimeUnits(ds.TimeBase, origin),
			}
		case DepthAxis:
			plan[c.Name] = Encoding{DType: Float32, ChunkSizes: []int{c.Len()}, Zlib: zlib}
		default:
			plan[c.Name] = Encoding{DType: Int32, ChunkSizes: []int{c.Len()}, Zlib: zlib}
		}
	}
	for _, v := range ds.Vars {
		e := Encoding{DType: Float32, Zlib: zlib}
		for _, d := range v.Dims {
			c := ds.Coord(d)
			switch {
			case c == nil:
				continue
			case c.Name == timeDim:
				e.ChunkSizes = append(e.ChunkSizes, 1)
			default:
				e.ChunkSizes = append(e.ChunkSizes, c.Len())
			}
		}
		plan[v.Name] = e
	}
	Log.WithField("n_encodings", len(plan)).Debug("prepared encoding plan")
	return plan
}

// UnlimitedDim returns the name of the dimension to store as unlimited:
// the time coordinate, or "" if the time axis has been replaced by a
// climatology.
func UnlimitedDim(ds *ExtractedDataset) string {
	if c := ds.AxisCoord(TimeAxis); c != nil {
		return c.Name
	}
	return ""
}
