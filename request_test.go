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
	"errors"
	"io/ioutil"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/kr/pretty"
)

const requestYAML = `dataset:
  model profile: SalishSeaCast-201905.yaml
  time base: hour
  variables group: physics tracers

start date: 2015-01-01
end date: 2015-01-05

extract variables:
  - votemper
  - vosaline

selection:
  time interval: 2
  depth:
    depth min: 1
    depth max: 10
  grid y:
    y min: 200
    y max: 400
    y interval: 2
  grid x:
    x interval: 3

extracted dataset:
  name: SalishSeaCast_1h_physics
  description: Hourly physics tracers
  dest dir: /tmp
`

// writeRequest writes the request YAML s to a temporary file and returns
// its path.
func writeRequest(t *testing.T, name, s string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := ioutil.WriteFile(p, []byte(s), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadRequest(t *testing.T) {
	r, err := LoadRequest(writeRequest(t, "request.yaml", requestYAML), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if r.Dataset.ModelProfile != "SalishSeaCast-201905.yaml" || r.Dataset.TimeBase != Hour ||
		r.Dataset.VariablesGroup != "physics tracers" {
		t.Errorf("dataset: %# v", pretty.Formatter(r.Dataset))
	}
	if r.StartDate.String() != "2015-01-01" || r.EndDate.String() != "2015-01-05" {
		t.Errorf("dates: have %s and %s", r.StartDate, r.EndDate)
	}
	if want := []string{"votemper", "vosaline"}; !reflect.DeepEqual(r.ExtractVariables, want) {
		t.Errorf("variables: have %v, want %v", r.ExtractVariables, want)
	}
	if !r.Deflate() {
		t.Error("deflate should default to true")
	}
	if r.OutputFormat() != NetCDF4 {
		t.Errorf("format: have %s, want %s", r.OutputFormat(), NetCDF4)
	}
	if r.Resample != nil || r.Climatology != nil {
		t.Error("no aggregation was requested")
	}
	want := Selection{
		TimeAxis:  Range{Stride: 2},
		DepthAxis: NewRange(1, 10, 0),
		YAxis:     NewRange(200, 400, 2),
		XAxis:     Range{Stride: 3},
	}
	if have := r.AxisSelection(); !reflect.DeepEqual(have, want) {
		t.Error(pretty.Diff(have, want))
	}
	if r.File() == "" {
		t.Error("missing file name")
	}
}

func TestLoadRequestDateOverrides(t *testing.T) {
	file := writeRequest(t, "request.yaml", requestYAML)
	r, err := LoadRequest(file, "2015-02-01", "2015-02-31")
	if err != nil {
		t.Fatal(err)
	}
	if r.StartDate.String() != "2015-02-01" || r.EndDate.String() != "2015-02-28" {
		t.Errorf("have %s to %s", r.StartDate, r.EndDate)
	}
	if _, err := LoadRequest(file, "2015-02-31", ""); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("start date beyond the end of the month: have %v", err)
	}
}

func TestLoadRequestDaskCluster(t *testing.T) {
	r, err := LoadRequest(writeRequest(t, "request.yaml", requestYAML+"dask cluster: salish_cluster.yaml\n"), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if r.Cluster != "salish_cluster.yaml" {
		t.Errorf("cluster: have %q", r.Cluster)
	}

	r, err = LoadRequest(writeRequest(t, "request.yaml", requestYAML+"cluster: tcp://localhost:8786\n"), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if r.Cluster != "tcp://localhost:8786" {
		t.Errorf("cluster: have %q", r.Cluster)
	}

	s := requestYAML + "cluster: a.yaml\ndask cluster: b.yaml\n"
	if _, err := LoadRequest(writeRequest(t, "request.yaml", s), "", ""); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("conflicting clusters: have %v", err)
	}
}

func TestLoadRequestTOML(t *testing.T) {
	const s = `"start date" = "2015-04-01"
"end date" = "2015-04-30"
"extract variables" = ["votemper"]

[dataset]
"model profile" = "SalishSeaCast-201905.yaml"
"time base" = "day"
"variables group" = "physics tracers"

[resample]
"time interval" = "1M"
aggregation = "max"

["extracted dataset"]
name = "SalishSeaCast_1m_votemper"
description = "Monthly maximum temperature"
"dest dir" = "/tmp"
format = "NETCDF3_64BIT"
deflate = false
`
	r, err := LoadRequest(writeRequest(t, "request.toml", s), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if r.Resample == nil || r.Resample.TimeInterval != "1M" || r.Resample.Aggregation != Max {
		t.Errorf("resample: %# v", pretty.Formatter(r.Resample))
	}
	if r.Deflate() {
		t.Error("deflate should be false")
	}
	if r.OutputFormat() != NetCDF3_64Bit {
		t.Errorf("format: have %s", r.OutputFormat())
	}
}

func TestLoadRequestErrors(t *testing.T) {
	replace := func(old, new string) string {
		if !strings.Contains(requestYAML, old) {
			t.Fatalf("%q is not in the request", old)
		}
		return strings.Replace(requestYAML, old, new, 1)
	}
	for _, test := range []struct {
		name  string
		yaml  string
		err   error
		field string
	}{
		{
			name:  "conflicting aggregation",
			yaml:  "resample:\n  time interval: 1D\nclimatology:\n  group by: month\n",
			err:   ErrConflictingAggregation,
			field: "resample",
		},
		{
			name:  "conflicting aggregation in complete request",
			yaml:  requestYAML + "resample:\n  time interval: 1D\nclimatology:\n  group by: month\n",
			err:   ErrConflictingAggregation,
			field: "resample",
		},
		{
			name:  "time base",
			yaml:  replace("time base: hour", "time base: week"),
			err:   ErrInvalidConfig,
			field: "dataset.time base",
		},
		{
			name:  "no variables",
			yaml:  replace("  - votemper\n  - vosaline\n", "  []\n"),
			err:   ErrInvalidConfig,
			field: "extract variables",
		},
		{
			name:  "end before start",
			yaml:  replace("end date: 2015-01-05", "end date: 2014-12-31"),
			err:   ErrInvalidConfig,
			field: "end date",
		},
		{
			name:  "format",
			yaml:  replace("  dest dir: /tmp\n", "  dest dir: /tmp\n  format: HDF4\n"),
			err:   ErrInvalidConfig,
			field: "extracted dataset.format",
		},
		{
			name:  "negative interval",
			yaml:  replace("x interval: 3", "x interval: -3"),
			err:   ErrInvalidConfig,
			field: "selection.grid x.x interval",
		},
		{
			name:  "aggregation",
			yaml:  requestYAML + "resample:\n  time interval: 1D\n  aggregation: mode\n",
			err:   ErrInvalidConfig,
			field: "resample.aggregation",
		},
		{
			name:  "resample interval",
			yaml:  requestYAML + "resample:\n  time interval: 1W\n",
			err:   ErrInvalidConfig,
			field: "resample.time interval",
		},
		{
			name:  "climatology field",
			yaml:  requestYAML + "climatology:\n  group by: season\n",
			err:   ErrInvalidConfig,
			field: "climatology.group by",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := LoadRequest(writeRequest(t, "request.yaml", test.yaml), "", "")
			if !errors.Is(err, test.err) {
				t.Fatalf("have %v, want %v", err, test.err)
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("%v is not a *ConfigError", err)
			}
			if ce.Field != test.field {
				t.Errorf("field: have %q, want %q", ce.Field, test.field)
			}
			if !IsConfigError(err) {
				t.Error("should be a configuration error")
			}
		})
	}
}

func TestLoadRequestNotFound(t *testing.T) {
	_, err := LoadRequest(filepath.Join(t.TempDir(), "missing.yaml"), "", "")
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("have %v, want %v", err, ErrConfigNotFound)
	}
}
