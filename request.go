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
	"io/ioutil"
	"os"
	"strings"
)

// TimeBase is the temporal granularity of stored model output.
type TimeBase string

// These are the supported time bases.
const (
	Hour  TimeBase = "hour"
	Day   TimeBase = "day"
	Month TimeBase = "month"
)

// Valid reports whether tb is one of the supported time bases.
func (tb TimeBase) Valid() bool {
	switch tb {
	case Hour, Day, Month:
		return true
	}
	return false
}

// Aggregation names a reduction applied to groups of time steps.
type Aggregation string

// These are the supported aggregations.
const (
	Mean   Aggregation = "mean"
	Sum    Aggregation = "sum"
	Min    Aggregation = "min"
	Max    Aggregation = "max"
	Std    Aggregation = "std"
	Var    Aggregation = "var"
	Median Aggregation = "median"
)

// Aggregations lists the supported aggregations.
var Aggregations = []Aggregation{Mean, Sum, Min, Max, Std, Var, Median}

// Valid reports whether a is one of the supported aggregations.
func (a Aggregation) Valid() bool {
	for _, v := range Aggregations {
		if a == v {
			return true
		}
	}
	return false
}

// Format is the on-disk format of the extracted dataset.
type Format string

// These are the supported output formats.
const (
	NetCDF4        Format = "NETCDF4"
	NetCDF4Classic Format = "NETCDF4_CLASSIC"
	NetCDF3_64Bit  Format = "NETCDF3_64BIT"
	NetCDF3Classic Format = "NETCDF3_CLASSIC"
)

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	switch f {
	case NetCDF4, NetCDF4Classic, NetCDF3_64Bit, NetCDF3Classic:
		return true
	}
	return false
}

// IsHDF5 reports whether f is stored in an HDF5 container.
func (f Format) IsHDF5() bool { return f == NetCDF4 || f == NetCDF4Classic }

// Request is an extraction request, usually read from a YAML file.
type Request struct {
	Dataset struct {
		ModelProfile   string   `json:"model profile" toml:"model profile"`
		TimeBase       TimeBase `json:"time base" toml:"time base"`
		VariablesGroup string   `json:"variables group" toml:"variables group"`
	} `json:"dataset" toml:"dataset"`

	// Cluster is a cluster configuration file or the host:port of a
	// running scheduler.
	Cluster string `json:"cluster" toml:"cluster"`

	// DaskCluster is an alias of Cluster.
	DaskCluster string `json:"dask cluster,omitempty" toml:"dask cluster"`

	StartDate Date `json:"start date" toml:"start date"`
	EndDate   Date `json:"end date" toml:"end date"`

	ExtractVariables []string `json:"extract variables" toml:"extract variables"`

	Selection struct {
		TimeInterval int `json:"time interval,omitempty" toml:"time interval"`
		Depth        struct {
			Min      int  `json:"depth min,omitempty" toml:"depth min"`
			Max      *int `json:"depth max,omitempty" toml:"depth max"`
			Interval int  `json:"depth interval,omitempty" toml:"depth interval"`
		} `json:"depth" toml:"depth"`
		GridY struct {
			Min      int  `json:"y min,omitempty" toml:"y min"`
			Max      *int `json:"y max,omitempty" toml:"y max"`
			Interval int  `json:"y interval,omitempty" toml:"y interval"`
		} `json:"grid y" toml:"grid y"`
		GridX struct {
			Min      int  `json:"x min,omitempty" toml:"x min"`
			Max      *int `json:"x max,omitempty" toml:"x max"`
			Interval int  `json:"x interval,omitempty" toml:"x interval"`
		} `json:"grid x" toml:"grid x"`
	} `json:"selection" toml:"selection"`

	IncludeLonsLats bool `json:"include lons lats" toml:"include lons lats"`

	Resample *struct {
		TimeInterval string      `json:"time interval" toml:"time interval"`
		Aggregation  Aggregation `json:"aggregation,omitempty" toml:"aggregation"`
	} `json:"resample,omitempty" toml:"resample"`

	Climatology *struct {
		GroupBy     string      `json:"group by" toml:"group by"`
		Aggregation Aggregation `json:"aggregation,omitempty" toml:"aggregation"`
	} `json:"climatology,omitempty" toml:"climatology"`

	ExtractedDataset struct {
		Name           string `json:"name" toml:"name"`
		Description    string `json:"description" toml:"description"`
		DestDir        string `json:"dest dir" toml:"dest dir"`
		Format         Format `json:"format,omitempty" toml:"format"`
		Deflate        *bool  `json:"deflate,omitempty" toml:"deflate"`
		UseModelCoords bool   `json:"use model coords" toml:"use model coords"`
	} `json:"extracted dataset" toml:"extracted dataset"`

	file string
}

// File returns the path the request was loaded from.
func (r *Request) File() string { return r.file }

// Deflate reports whether the output should be compressed.
func (r *Request) Deflate() bool {
	return r.ExtractedDataset.Deflate == nil || *r.ExtractedDataset.Deflate
}

// OutputFormat returns the requested format, defaulting to NETCDF4.
func (r *Request) OutputFormat() Format {
	if r.ExtractedDataset.Format == "" {
		return NetCDF4
	}
	return r.ExtractedDataset.Format
}

// AxisSelection returns the per-axis selection of the request.
func (r *Request) AxisSelection() Selection {
	s := r.Selection
	return Selection{
		TimeAxis:  Range{Stride: s.TimeInterval},
		DepthAxis: Range{Min: s.Depth.Min, Max: s.Depth.Max, Stride: s.Depth.Interval},
		YAxis:     Range{Min: s.GridY.Min, Max: s.GridY.Max, Stride: s.GridY.Interval},
		XAxis:     Range{Min: s.GridX.Min, Max: s.GridX.Max, Stride: s.GridX.Interval},
	}
}

// LoadRequest reads an extraction request from the YAML (or, if the name
// ends in .toml, TOML) file. Non-empty start and end override the dates in
// the file; an end override with a day beyond the end of its month is
// moved to the last day of the month.
func LoadRequest(file, start, end string) (*Request, error) {
	log := Log.WithField("config_file", file)
	b, err := ioutil.ReadFile(file)
	if os.IsNotExist(err) {
		log.Error("config file not found")
		return nil, &ConfigError{Err: ErrConfigNotFound, File: file}
	} else if err != nil {
		return nil, fmt.Errorf("reshapr: reading request: %w", err)
	}
	r := new(Request)
	if err := unmarshal(b, file, r); err != nil {
		return nil, invalid(file, "", "parsing request: %v", err)
	}
	r.file = file
	log.Debug("loaded config")

	switch {
	case r.Cluster == "":
		r.Cluster = r.DaskCluster
	case r.DaskCluster != "" && r.DaskCluster != r.Cluster:
		return nil, invalid(file, "dask cluster", "dask cluster %q conflicts with cluster %q", r.DaskCluster, r.Cluster)
	}

	if start = strings.TrimSpace(start); start != "" {
		d, err := ParseDate(start)
		if err != nil {
			return nil, invalid(file, "start date", "%v", err)
		}
		r.StartDate = d
	}
	if end = strings.TrimSpace(end); end != "" {
		d, err := ParseEndDate(end)
		if err != nil {
			return nil, invalid(file, "end date", "%v", err)
		}
		r.EndDate = d
	}

	if err := r.validate(); err != nil {
		if ce, ok := err.(*ConfigError); ok {
			log.WithFields(ce.Fields()).Error(ce.Err.Error())
		}
		return nil, err
	}
	return r, nil
}

func (r *Request) validate() error {
	if _, err := r.aggregationMode(); err != nil {
		return err
	}
	if r.Dataset.ModelProfile == "" {
		return invalid(r.file, "dataset.model profile", "missing model profile")
	}
	if !r.Dataset.TimeBase.Valid() {
		return invalid(r.file, "dataset.time base", "invalid time base %q; expected hour, day, or month", r.Dataset.TimeBase)
	}
	if r.Dataset.VariablesGroup == "" {
		return invalid(r.file, "dataset.variables group", "missing variables group")
	}
	if len(r.ExtractVariables) == 0 {
		return invalid(r.file, "extract variables", "no variables listed")
	}
	if r.StartDate.IsZero() {
		return invalid(r.file, "start date", "missing start date")
	}
	if r.EndDate.IsZero() {
		return invalid(r.file, "end date", "missing end date")
	}
	if r.EndDate.Before(r.StartDate.Time) {
		return invalid(r.file, "end date", "end date %s is before start date %s", r.EndDate, r.StartDate)
	}
	if r.ExtractedDataset.Name == "" {
		return invalid(r.file, "extracted dataset.name", "missing extracted dataset name")
	}
	if r.ExtractedDataset.DestDir == "" {
		return invalid(r.file, "extracted dataset.dest dir", "missing destination directory")
	}
	if !r.OutputFormat().Valid() {
		return invalid(r.file, "extracted dataset.format", "invalid format %q", r.ExtractedDataset.Format)
	}
	for _, s := range []struct {
		field string
		v     int
	}{
		{"selection.time interval", r.Selection.TimeInterval},
		{"selection.depth.depth interval", r.Selection.Depth.Interval},
		{"selection.grid y.y interval", r.Selection.GridY.Interval},
		{"selection.grid x.x interval", r.Selection.GridX.Interval},
	} {
		if s.v < 0 {
			return invalid(r.file, s.field, "interval must not be negative")
		}
	}
	return nil
}
