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
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/reshapr"
)

// sink receives the computed values of an extracted dataset and stores
// them in a file.
type sink interface {
	// writeCoord stores the values of a coordinate.
	writeCoord(c *reshapr.Coordinate, vals []float64) error

	// writeStep stores element i along the outer dimension of a variable.
	// Variables without a stepped dimension are stored in one step.
	writeStep(v *reshapr.ExtractedVariable, i int, vals []float64) error

	close() error
}

// layout holds the output dimensions of an extracted dataset.
type layout struct {
	ds        *reshapr.ExtractedDataset
	plan      reshapr.EncodingPlan
	unlimited string

	// stepDim is the dimension along which variables are computed one
	// element at a time: the time coordinate or the coordinate that
	// replaces it.
	stepDim string
}

func newLayout(ds *reshapr.ExtractedDataset, plan reshapr.EncodingPlan, unlimited string) (*layout, error) {
	l := &layout{ds: ds, plan: plan, unlimited: unlimited}
	if ds.Aggregate != nil {
		l.stepDim = ds.Aggregate.Dim
	} else if c := ds.AxisCoord(reshapr.TimeAxis); c != nil {
		l.stepDim = c.Name
	}
	for _, c := range ds.Coords {
		if c.Len() == 0 {
			return nil, fmt.Errorf("ncf: coordinate %s is empty", c.Name)
		}
		if _, ok := plan[c.Name]; !ok {
			return nil, fmt.Errorf("ncf: no encoding for coordinate %s", c.Name)
		}
	}
	for _, v := range ds.Vars {
		if _, ok := plan[v.Name]; !ok {
			return nil, fmt.Errorf("ncf: no encoding for variable %s", v.Name)
		}
		for i, d := range v.Dims {
			if ds.Coord(d) == nil {
				return nil, fmt.Errorf("ncf: variable %s has unknown dimension %s", v.Name, d)
			}
			if d == l.stepDim && i != 0 {
				return nil, fmt.Errorf("ncf: variable %s: dimension %s must be outermost", v.Name, d)
			}
		}
	}
	return l, nil
}

// shape returns the output shape of v.
func (l *layout) shape(v *reshapr.ExtractedVariable) []int {
	s := make([]int, len(v.Dims))
	for i, d := range v.Dims {
		s[i] = l.ds.Coord(d).Len()
	}
	return s
}

// stepped reports whether v is computed one step at a time.
func (l *layout) stepped(v *reshapr.ExtractedVariable) bool {
	return l.stepDim != "" && len(v.Dims) > 0 && v.Dims[0] == l.stepDim
}

// steps returns the number of steps that v is computed in.
func (l *layout) steps(v *reshapr.ExtractedVariable) int {
	if l.stepped(v) {
		return l.ds.Coord(l.stepDim).Len()
	}
	return 1
}

// stepSize returns the number of elements in one step of v.
func (l *layout) stepSize(v *reshapr.ExtractedVariable) int {
	s := l.shape(v)
	if l.stepped(v) {
		s = s[1:]
	}
	n := 1
	for _, x := range s {
		n *= x
	}
	return n
}

// coordValues returns the values of c as stored on disk. Times are encoded
// with the units of the encoding.
func coordValues(c *reshapr.Coordinate, enc reshapr.Encoding) ([]float64, error) {
	if c.Axis != reshapr.TimeAxis {
		return c.Values, nil
	}
	u, err := ParseTimeUnits(enc.Units)
	if err != nil {
		return nil, err
	}
	o := make([]float64, len(c.Times))
	for i, t := range c.Times {
		o[i] = u.Encode(t)
	}
	return o, nil
}

// coordAttrs returns the attributes of c, including the units of its
// encoding.
func coordAttrs(c *reshapr.Coordinate, enc reshapr.Encoding) reshapr.Attributes {
	a := append(reshapr.Attributes(nil), c.Attrs...)
	if enc.Units != "" {
		a.Set("units", enc.Units)
	}
	return a
}

// Write computes ds and writes it to path.
func (e *Engine) Write(ctx context.Context, ds *reshapr.ExtractedDataset, path string, plan reshapr.EncodingPlan, format reshapr.Format, unlimited string) error {
	start := time.Now()
	l, err := newLayout(ds, plan, unlimited)
	if err != nil {
		return err
	}
	var reduce reduceFunc
	if ds.Aggregate != nil {
		if reduce, err = reducer(ds.Aggregate.Reducer); err != nil {
			return err
		}
	}

	var s sink
	if format.IsHDF5() {
		e.Log.WithField("nc_format", format).Debug("netCDF-4 datasets are stored contiguously without compression")
		s, err = newHDF5Sink(path, l)
	} else {
		e.Log.WithField("nc_format", format).Debug("chunking and compression are not stored in netCDF classic files")
		s, err = newCDFSink(path, l, format)
	}
	if err != nil {
		return err
	}
	for _, c := range ds.Coords {
		vals, err := coordValues(c, plan[c.Name])
		if err != nil {
			s.close()
			return err
		}
		if err := s.writeCoord(c, vals); err != nil {
			s.close()
			return err
		}
	}

	type task struct {
		v    *reshapr.ExtractedVariable
		step int
	}
	var tasks []task
	for _, v := range ds.Vars {
		for i := 0; i < l.steps(v); i++ {
			tasks = append(tasks, task{v: v, step: i})
		}
	}
	var mu sync.Mutex
	err = e.forEach(ctx, len(tasks), func(ctx context.Context, k int) error {
		t := tasks[k]
		vals, err := e.computeStep(ctx, l, t.v, t.step, reduce)
		if err != nil {
			return fmt.Errorf("ncf: computing %s: %w", t.v.Name, err)
		}
		mu.Lock()
		defer mu.Unlock()
		return s.writeStep(t.v, t.step, vals)
	})
	if err != nil {
		s.close()
		return err
	}
	if err := s.close(); err != nil {
		return err
	}

	if fi, err := os.Stat(path); err == nil {
		e.metrics.BytesWritten.Add(float64(fi.Size()))
	}
	d := time.Since(start)
	e.metrics.WriteDuration.WithLabelValues(string(format)).Observe(d.Seconds())
	e.Log.WithFields(logrus.Fields{
		"nc_path":   path,
		"n_tasks":   len(tasks),
		"t_write":   d.Seconds(),
		"nc_format": format,
	}).Debug("computed and stored dataset")
	return nil
}

// computeStep computes step i of v. For aggregated datasets the source
// time steps in the bucket for i are read and reduced.
func (e *Engine) computeStep(ctx context.Context, l *layout, v *reshapr.ExtractedVariable, i int, reduce reduceFunc) ([]float64, error) {
	if !l.stepped(v) {
		a, err := v.Dataset.ReadSlab(ctx, v.Source, v.Index)
		if err != nil {
			return nil, err
		}
		return a.Elements, nil
	}
	idx := append([][]int(nil), v.Index...)
	agg := l.ds.Aggregate
	if agg == nil {
		idx[0] = []int{v.Index[0][i]}
		a, err := v.Dataset.ReadSlab(ctx, v.Source, idx)
		if err != nil {
			return nil, err
		}
		return a.Elements, nil
	}

	n := l.stepSize(v)
	out := make([]float64, n)
	bucket := agg.Buckets[i]
	if len(bucket) == 0 {
		for j := range out {
			out[j] = math.NaN()
		}
		return out, nil
	}
	idx[0] = make([]int, len(bucket))
	for k, pos := range bucket {
		idx[0][k] = v.Index[0][pos]
	}
	a, err := v.Dataset.ReadSlab(ctx, v.Source, idx)
	if err != nil {
		return nil, err
	}
	x := make([]float64, len(bucket))
	for j := range out {
		for k := range bucket {
			x[k] = a.Elements[k*n+j]
		}
		out[j] = reduce(x)
	}
	return out, nil
}
