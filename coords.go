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
	"fmt"
	"math"
	"strings"
	"time"
)

// timeExamples illustrate the placement of time values for each time base.
var timeExamples = map[TimeBase]string{
	Hour: "e.g. the field average values for the first hour of 8 February 2022 have " +
		"a time value of 2022-02-08 00:30:00Z",
	Day: "e.g. the field average values for 8 February 2022 have " +
		"a time value of 2022-02-08 12:00:00Z",
	Month: "e.g. the field average values for January 2022 have " +
		"a time value of 2022-01-16 12:00:00Z",
}

const timeComment = "time values are UTC at the centre of the intervals over which the " +
	"calculated model results are averaged"

// timeAttrs returns the metadata of a time coordinate with the given time
// base. An unrecognized time base gets a comment without an example.
func timeAttrs(tb TimeBase, origin Date) Attributes {
	comment := timeComment
	if ex, ok := timeExamples[tb]; ok {
		comment += "; " + ex
	} else {
		Log.WithField("time_base", tb).Warn("unrecognized time base; using generic time coordinate metadata")
	}
	_, offset := timeQuanta(tb)
	return Attributes{
		{"standard_name", "time"},
		{"long_name", "Time Axis"},
		{"time_origin", fmt.Sprintf("%s %s", origin, offset)},
		{"comment", comment},
	}
}

// timeQuanta returns the unit and within-day offset of time values
// for the time base.
func timeQuanta(tb TimeBase) (units, offset string) {
	switch tb {
	case Day:
		return "days", "12:00:00"
	case Hour:
		return "hours", "00:30:00"
	default:
		return "seconds", "00:30:00"
	}
}

// depthCoord returns the source name of the depth coordinate to include in
// the output, or "" if depth is omitted. Depth is included only if the
// profile declares a depth chunk size, the dataset family has a depth
// coordinate, and at least one of vars in ds has that dimension.
func depthCoord(p *ModelProfile, f DatasetFamily, ds Dataset, vars []string) string {
	if _, ok := p.ChunkSize["depth"]; !ok || f.DepthCoord == "" {
		return ""
	}
	for _, name := range vars {
		if v, ok := ds.Variable(name); ok && v.HasDim(f.DepthCoord) {
			return f.DepthCoord
		}
	}
	return ""
}

// OutputCoords returns the coordinates of the extracted dataset in time,
// depth, y, x order, with the request's selection applied. Depth is
// omitted if none of the requested variables have a depth axis. Output
// names are the model's own axis names if the request asks for model
// coordinates and time, depth, gridY, and gridX otherwise.
func OutputCoords(ds Dataset, r *Request, p *ModelProfile) ([]*Coordinate, error) {
	f, err := p.Family(r.Dataset.TimeBase, r.Dataset.VariablesGroup)
	if err != nil {
		return nil, err
	}
	sel := r.AxisSelection()
	name := func(a Axis, source string) string {
		if r.ExtractedDataset.UseModelCoords {
			return source
		}
		return a.genericName()
	}

	times, err := ds.Times(p.TimeCoord.Name)
	if err != nil {
		return nil, fmt.Errorf("reshapr: time coordinate: %w", err)
	}
	tc := &Coordinate{
		Name:   name(TimeAxis, p.TimeCoord.Name),
		Axis:   TimeAxis,
		Source: p.TimeCoord.Name,
		Attrs:  timeAttrs(r.Dataset.TimeBase, p.ExtractionTimeOrigin),
	}
	tc.Indices = sel.Get(TimeAxis).Indices(len(times))
	tc.Times = make([]time.Time, len(tc.Indices))
	for i, j := range tc.Indices {
		tc.Times[i] = times[j]
	}
	coords := []*Coordinate{tc}
	Log.WithField("time", tc.Name).Debug("extraction time coordinate")

	if src := depthCoord(p, f, ds, r.ExtractVariables); src != "" {
		dc, err := selectCoord(ds, DepthAxis, src, name(DepthAxis, src), sel.Get(DepthAxis))
		if err != nil {
			return nil, err
		}
		dc.Attrs = Attributes{
			{"standard_name", "sea_floor_depth"},
			{"long_name", "Sea Floor Depth"},
			{"units", "metres"},
			{"positive", "down"},
		}
		coords = append(coords, dc)
		Log.WithField("depth", dc.Name).Debug("extraction depth coordinate")
	}

	for _, axis := range []struct {
		a     Axis
		coord AxisCoord
	}{
		{YAxis, p.YCoord},
		{XAxis, p.XCoord},
	} {
		c, err := selectCoord(ds, axis.a, axis.coord.Name, name(axis.a, axis.coord.Name), sel.Get(axis.a))
		if err != nil {
			return nil, err
		}
		// Some files store grid indices as floats.
		for i, v := range c.Values {
			c.Values[i] = math.Trunc(v)
		}
		c.Attrs = gridAttrs(axis.a, axis.coord)
		coords = append(coords, c)
		Log.WithField(string(axis.a), c.Name).Debug("extraction coordinate")
	}
	return coords, nil
}

func selectCoord(ds Dataset, a Axis, source, name string, r Range) (*Coordinate, error) {
	vals, err := ds.CoordValues(source)
	if err != nil {
		return nil, fmt.Errorf("reshapr: %s coordinate: %w", a, err)
	}
	c := &Coordinate{Name: name, Axis: a, Source: source, Indices: r.Indices(len(vals))}
	c.Values = make([]float64, len(c.Indices))
	for i, j := range c.Indices {
		c.Values[i] = vals[j]
	}
	return c, nil
}

// gridAttrs returns the metadata of a grid index coordinate. The profile
// may override the units and comment, e.g. for grids in metres.
func gridAttrs(a Axis, c AxisCoord) Attributes {
	generic := a.genericName()
	units := "count"
	if c.Units != "" {
		units = c.Units
	}
	comment := fmt.Sprintf("%s values are grid indices in the model %s-direction", generic, a)
	if c.Comment != "" {
		comment = c.Comment
	}
	return Attributes{
		{"standard_name", string(a)},
		{"long_name", "Grid " + strings.ToUpper(string(a))},
		{"units", units},
		{"comment", comment},
	}
}
