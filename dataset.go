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
	"context"
	"fmt"
	"time"

	"github.com/ctessum/sparse"
)

// Attribute is a named metadata value. Values are strings, float64s, or
// ints.
type Attribute struct {
	Name  string
	Value interface{}
}

// Attributes is an ordered list of attributes. Writers preserve the order.
type Attributes []Attribute

// Get returns the value of the named attribute.
func (a Attributes) Get(name string) (interface{}, bool) {
	for _, at := range a {
		if at.Name == name {
			return at.Value, true
		}
	}
	return nil, false
}

// String returns the named attribute formatted as a string.
func (a Attributes) String(name string) (string, bool) {
	v, ok := a.Get(name)
	if !ok {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Set replaces the value of the named attribute, appending it if it does
// not exist.
func (a *Attributes) Set(name string, value interface{}) {
	for i, at := range *a {
		if at.Name == name {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Attribute{Name: name, Value: value})
}

// SourceVariable describes a variable in an opened dataset.
type SourceVariable struct {
	Name  string
	Dims  []string
	Shape []int
	Attrs Attributes
}

// HasDim reports whether the variable has the named dimension.
func (v *SourceVariable) HasDim(name string) bool {
	for _, d := range v.Dims {
		if d == name {
			return true
		}
	}
	return false
}

// Dataset is a read-only view of one or more model results files.
// Record variables are concatenated along the time axis.
type Dataset interface {
	// DataVars returns the names of the variables that are not
	// coordinates, in sorted order.
	DataVars() []string

	// Variable returns the description of the named variable.
	Variable(name string) (*SourceVariable, bool)

	// CoordValues returns the values of a one-dimensional coordinate. If
	// the dataset has a dimension of that name but no variable, the
	// values are the indices of the dimension.
	CoordValues(name string) ([]float64, error)

	// Times returns the decoded values of a CF time coordinate.
	Times(name string) ([]time.Time, error)

	// ReadSlab reads the elements of the named variable at the given
	// indices along each of its dimensions. The result has one axis per
	// dimension, with the lengths of the index lists. Missing values
	// are NaN.
	ReadSlab(ctx context.Context, name string, index [][]int) (*sparse.DenseArray, error)

	Close() error
}

// OpenOptions configures how files are opened by an Engine.
type OpenOptions struct {
	// Chunks are the chunk sizes keyed by dimension name.
	Chunks map[string]int

	// Drop lists variables to exclude from the dataset.
	Drop []string

	// Parallel requests that files are opened concurrently.
	Parallel bool
}

// Engine carries out the array computations that an extraction plans.
type Engine interface {
	// Open opens the files at paths as a single dataset.
	Open(ctx context.Context, paths []string, opts OpenOptions) (Dataset, error)

	// Write computes ds and writes it to path using the given encoding.
	// unlimited names the unlimited dimension, if any.
	Write(ctx context.Context, ds *ExtractedDataset, path string, plan EncodingPlan, format Format, unlimited string) error

	// Close releases the resources of the engine.
	Close() error
}

// Coordinate is an output coordinate.
type Coordinate struct {
	// Name is the output name of the coordinate.
	Name string

	// Axis is the logical axis of the coordinate. It is empty for the
	// group coordinate of a climatology.
	Axis Axis

	// Source is the name of the coordinate in the source dataset.
	Source string

	// Indices are the selected indices of the source coordinate.
	Indices []int

	// Values holds the coordinate values, except for time coordinates,
	// whose values are in Times.
	Values []float64
	Times  []time.Time

	Attrs Attributes
}

// Len returns the number of elements of the coordinate.
func (c *Coordinate) Len() int {
	if c.Axis == TimeAxis {
		return len(c.Times)
	}
	return len(c.Values)
}

// ExtractedVariable is an output variable. Its values are read from
// Source in Dataset when the extracted dataset is written.
type ExtractedVariable struct {
	Name    string
	Source  string
	Dataset Dataset

	// Dims are the output coordinate names of the variable's dimensions
	// and Index holds the selected source indices along each of them.
	Dims  []string
	Index [][]int

	Attrs Attributes
}

// HasDim reports whether the variable has the named output dimension.
func (v *ExtractedVariable) HasDim(name string) bool {
	for _, d := range v.Dims {
		if d == name {
			return true
		}
	}
	return false
}

// AggregateKind is the kind of a temporal aggregation.
type AggregateKind int

// These are the kinds of temporal aggregation.
const (
	NoAggregation AggregateKind = iota
	Resample
	Climatology
)

func (k AggregateKind) String() string {
	switch k {
	case Resample:
		return "resample"
	case Climatology:
		return "climatology"
	default:
		return "none"
	}
}

// Aggregate describes a reduction of the time axis.
type Aggregate struct {
	Kind    AggregateKind
	Reducer Aggregation

	// Dim is the output dimension that replaces the time axis.
	Dim string

	// Buckets lists, for each element of Dim, the positions along the
	// selected source time axis that are reduced into it.
	Buckets [][]int
}

// ExtractedDataset is the dataset written by an extraction.
type ExtractedDataset struct {
	Coords []*Coordinate
	Vars   []*ExtractedVariable
	Attrs  Attributes

	// TimeBase is the time base of the time coordinate, after any
	// resampling. It is empty if the time base is not recognized.
	TimeBase TimeBase

	// Aggregate is nil unless the time axis is reduced.
	Aggregate *Aggregate
}

// Coord returns the named coordinate, or nil.
func (ds *ExtractedDataset) Coord(name string) *Coordinate {
	for _, c := range ds.Coords {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// AxisCoord returns the coordinate for the logical axis, or nil.
func (ds *ExtractedDataset) AxisCoord(a Axis) *Coordinate {
	for _, c := range ds.Coords {
		if c.Axis == a {
			return c
		}
	}
	return nil
}
