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

// Range selects elements along one axis: every Stride'th index starting at
// Min and stopping before Max. A nil Max means the end of the axis and a
// Stride of zero means 1. The zero value selects the whole axis.
type Range struct {
	Min    int
	Max    *int
	Stride int
}

// FullRange selects every element of an axis.
var FullRange = Range{}

// NewRange returns a Range with an explicit upper bound.
func NewRange(min, max, stride int) Range {
	return Range{Min: min, Max: &max, Stride: stride}
}

func (r Range) stride() int {
	if r.Stride <= 0 {
		return 1
	}
	return r.Stride
}

// bounds returns the start and stop of the selection on an axis of length
// n. Negative bounds count from the end of the axis and out of range
// bounds are clamped.
func (r Range) bounds(n int) (start, stop int) {
	clamp := func(i int) int {
		if i < 0 {
			i += n
			if i < 0 {
				i = 0
			}
		}
		if i > n {
			i = n
		}
		return i
	}
	start = clamp(r.Min)
	stop = n
	if r.Max != nil {
		stop = clamp(*r.Max)
	}
	return start, stop
}

// Len returns the number of elements selected from an axis of length n.
func (r Range) Len(n int) int {
	start, stop := r.bounds(n)
	if stop <= start {
		return 0
	}
	s := r.stride()
	return (stop - start + s - 1) / s
}

// Indices returns the indices selected from an axis of length n.
func (r Range) Indices(n int) []int {
	start, stop := r.bounds(n)
	o := make([]int, 0, r.Len(n))
	for i := start; i < stop; i += r.stride() {
		o = append(o, i)
	}
	return o
}

// IsFull reports whether r selects the whole of any axis.
func (r Range) IsFull() bool {
	return r.Min == 0 && r.Max == nil && r.stride() == 1
}

func (r Range) String() string {
	max := "end"
	if r.Max != nil {
		max = fmt.Sprint(*r.Max)
	}
	return fmt.Sprintf("[%d:%s:%d]", r.Min, max, r.stride())
}

// Selection holds the per-axis selections of an extraction, keyed by the
// logical axes time, depth, y, and x. Missing axes are selected in full.
type Selection map[Axis]Range

// Get returns the selection for the axis.
func (s Selection) Get(a Axis) Range {
	if r, ok := s[a]; ok {
		return r
	}
	return FullRange
}

// Axis is a logical, model-independent axis.
type Axis string

// These are the logical axes.
const (
	TimeAxis  Axis = "time"
	DepthAxis Axis = "depth"
	YAxis     Axis = "y"
	XAxis     Axis = "x"
)

// genericName returns the output coordinate name used for the axis when
// model coordinate names are not requested.
func (a Axis) genericName() string {
	switch a {
	case YAxis:
		return "gridY"
	case XAxis:
		return "gridX"
	default:
		return string(a)
	}
}
