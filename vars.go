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
	"strings"

	"github.com/sirupsen/logrus"
)

// standardNameAttrs are the attributes that a variable's standard_name is
// taken from, in order of preference. If none are present the variable
// name is used.
var standardNameAttrs = []string{"standard_name", "short_name"}

// copiedAttrs are copied unchanged from source variables.
var copiedAttrs = []string{"long_name", "units"}

// standardName returns the standard name of v.
func standardName(v *SourceVariable) string {
	for _, name := range standardNameAttrs {
		if s, ok := v.Attrs.String(name); ok && s != "" {
			return s
		}
	}
	return v.Name
}

// ExtractedVars returns the output variables for the data variables in
// ds. Each variable gets only the coordinates that it has, with the
// selections of those coordinates. Requested variables that are not in ds
// are reported at warning level. ErrNoVariablesSelected is returned if ds
// has none of the requested variables.
func ExtractedVars(ds Dataset, coords []*Coordinate, r *Request) ([]*ExtractedVariable, error) {
	bySource := make(map[string]*Coordinate, len(coords))
	for _, c := range coords {
		bySource[c.Source] = c
	}
	present := make(map[string]bool)
	var o []*ExtractedVariable
	for _, name := range ds.DataVars() {
		v, ok := ds.Variable(name)
		if !ok {
			continue
		}
		present[name] = true
		ev := &ExtractedVariable{Name: name, Source: name, Dataset: ds}
		var skip bool
		for _, d := range v.Dims {
			c, ok := bySource[d]
			if !ok {
				Log.WithFields(logrus.Fields{"variable": name, "dim": d}).
					Warn("variable has a dimension that is not an extraction coordinate; skipping it")
				skip = true
				break
			}
			ev.Dims = append(ev.Dims, c.Name)
			ev.Index = append(ev.Index, c.Indices)
		}
		if skip {
			continue
		}
		ev.Attrs = Attributes{{"standard_name", standardName(v)}}
		for _, a := range copiedAttrs {
			if val, ok := v.Attrs.Get(a); ok {
				ev.Attrs = append(ev.Attrs, Attribute{a, val})
			}
		}
		o = append(o, ev)
		Log.WithFields(logrus.Fields{"variable": name, "dims": ev.Dims}).Debug("extracted variable")
	}
	var missing []string
	for _, name := range r.ExtractVariables {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		Log.WithFields(logrus.Fields{
			"missing_vars": missing,
			"vars_group":   r.Dataset.VariablesGroup,
		}).Warn("requested variables not found in dataset")
	}
	if len(o) == 0 {
		return nil, &ConfigError{
			Err:   ErrNoVariablesSelected,
			File:  r.file,
			Field: "extract variables",
			Msg: fmt.Sprintf("none of %s are in the %q variables group; check the variable names "+
				"and the variables group", strings.Join(r.ExtractVariables, ", "), r.Dataset.VariablesGroup),
		}
	}
	return o, nil
}

// LonLatVars returns longitude and latitude variables read from the
// geo-reference dataset geo, with the y and x selections of coords.
func LonLatVars(geo Dataset, coords []*Coordinate, p *ModelProfile) ([]*ExtractedVariable, error) {
	var yc, xc *Coordinate
	for _, c := range coords {
		switch c.Axis {
		case YAxis:
			yc = c
		case XAxis:
			xc = c
		}
	}
	if yc == nil || xc == nil {
		return nil, fmt.Errorf("reshapr: longitudes and latitudes need y and x coordinates")
	}
	g := p.GeoRefDataset
	o := make([]*ExtractedVariable, 0, 2)
	for _, ll := range []struct {
		name, source string
		attrs        Attributes
	}{
		{"longitude", g.longitudeVar(), Attributes{
			{"standard_name", "longitude"},
			{"long_name", "Longitude"},
			{"units", "degrees_east"},
		}},
		{"latitude", g.latitudeVar(), Attributes{
			{"standard_name", "latitude"},
			{"long_name", "Latitude"},
			{"units", "degrees_north"},
		}},
	} {
		v, ok := geo.Variable(ll.source)
		if !ok {
			return nil, fmt.Errorf("reshapr: geo reference dataset %s has no variable %s", g.Path, ll.source)
		}
		ev := &ExtractedVariable{Name: ll.name, Source: ll.source, Dataset: geo, Attrs: ll.attrs}
		if len(v.Dims) != 2 {
			return nil, fmt.Errorf("reshapr: geo reference variable %s has dimensions %v; expected (y, x)", ll.source, v.Dims)
		}
		ev.Dims = []string{yc.Name, xc.Name}
		ev.Index = append(ev.Index, yc.Indices, xc.Indices)
		o = append(o, ev)
		Log.WithField("variable", ll.name).Debug("extracted geo reference variable")
	}
	return o, nil
}
