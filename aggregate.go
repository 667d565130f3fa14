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
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// aggregationMode returns the kind of temporal aggregation the request
// asks for. Resampling and climatology cannot be combined.
func (r *Request) aggregationMode() (AggregateKind, error) {
	switch {
	case r.Resample != nil && r.Climatology != nil:
		return NoAggregation, &ConfigError{Err: ErrConflictingAggregation, File: r.file, Field: "resample"}
	case r.Resample != nil:
		if r.Resample.Aggregation != "" && !r.Resample.Aggregation.Valid() {
			return NoAggregation, invalid(r.file, "resample.aggregation", "unknown aggregation %q", r.Resample.Aggregation)
		}
		if _, err := ParseFrequency(r.Resample.TimeInterval); err != nil {
			return NoAggregation, invalid(r.file, "resample.time interval", "%v", err)
		}
		return Resample, nil
	case r.Climatology != nil:
		if r.Climatology.Aggregation != "" && !r.Climatology.Aggregation.Valid() {
			return NoAggregation, invalid(r.file, "climatology.aggregation", "unknown aggregation %q", r.Climatology.Aggregation)
		}
		if _, err := groupField(r.Climatology.GroupBy); err != nil {
			return NoAggregation, invalid(r.file, "climatology.group by", "%v", err)
		}
		return Climatology, nil
	}
	return NoAggregation, nil
}

// AggregateTime applies the temporal aggregation requested by r, if any, and
// returns the resulting dataset.
func AggregateTime(ds *ExtractedDataset, r *Request, origin Date) (*ExtractedDataset, error) {
	kind, err := r.aggregationMode()
	if err != nil {
		return nil, err
	}
	switch kind {
	case Resample:
		return ResampleTime(ds, r.Resample.TimeInterval, r.Resample.Aggregation, origin)
	case Climatology:
		return ClimatologyTime(ds, r.Climatology.GroupBy, r.Climatology.Aggregation)
	}
	return ds, nil
}

// Frequency is a resampling interval such as 1D, 6H, or 1M.
type Frequency struct {
	N    int
	Unit byte // 'H', 'D', or 'M'
}

var frequencyRE = regexp.MustCompile(`^(\d*)\s*([A-Za-z]+)$`)

// ParseFrequency parses a resampling interval: an optional count followed
// by H (hours), D (days), or M (months).
func ParseFrequency(s string) (Frequency, error) {
	m := frequencyRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Frequency{}, fmt.Errorf("invalid resampling interval %q", s)
	}
	f := Frequency{N: 1}
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			return Frequency{}, fmt.Errorf("invalid resampling interval %q", s)
		}
		f.N = n
	}
	switch strings.ToUpper(m[2]) {
	case "H":
		f.Unit = 'H'
	case "D":
		f.Unit = 'D'
	case "M", "MS":
		f.Unit = 'M'
	default:
		return Frequency{}, fmt.Errorf("unsupported resampling interval unit in %q; expected H, D, or M", s)
	}
	return f, nil
}

func (f Frequency) String() string { return fmt.Sprintf("%d%c", f.N, f.Unit) }

// TimeBase returns the time base of data resampled at f: day for daily
// intervals, month for monthly ones, and "" otherwise.
func (f Frequency) TimeBase() TimeBase {
	switch f.Unit {
	case 'D':
		return Day
	case 'M':
		return Month
	}
	return ""
}

// bucketStart returns the start of the interval that t falls in. Sub-month
// intervals are counted from midnight on the day of first.
func (f Frequency) bucketStart(t, first time.Time) time.Time {
	if f.Unit == 'M' {
		months := (t.Year()-first.Year())*12 + int(t.Month()-first.Month())
		months -= months % f.N
		return time.Date(first.Year(), first.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	}
	origin := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.UTC)
	d := f.duration()
	return origin.Add(t.Sub(origin) / d * d)
}

func (f Frequency) duration() time.Duration {
	if f.Unit == 'H' {
		return time.Duration(f.N) * time.Hour
	}
	return time.Duration(f.N) * 24 * time.Hour
}

// next returns the start of the interval after the one starting at t.
func (f Frequency) next(t time.Time) time.Time {
	if f.Unit == 'M' {
		return time.Date(t.Year(), t.Month()+time.Month(f.N), 1, 0, 0, 0, 0, time.UTC)
	}
	return t.Add(f.duration())
}

// label returns the time value of the interval starting at t: its start
// plus half of its duration. For monthly intervals the offset is half of
// the number of days in the month that t is in.
func (f Frequency) label(t time.Time) time.Time {
	if f.Unit == 'M' {
		days := daysIn(t.Year(), t.Month())
		return t.Add(time.Duration(days) * 12 * time.Hour)
	}
	return t.Add(f.duration() / 2)
}

// timeCoordIndex returns the position of the time coordinate in ds.
func timeCoordIndex(ds *ExtractedDataset) (int, error) {
	for i, c := range ds.Coords {
		if c.Axis == TimeAxis {
			return i, nil
		}
	}
	return -1, fmt.Errorf("reshapr: dataset has no time coordinate")
}

// ResampleTime reduces the time axis of ds to the interval freq using the
// aggregation agg (mean if empty). Intervals without any source time
// values are kept and reduce to missing values. The new time values are
// at the centres of the intervals.
func ResampleTime(ds *ExtractedDataset, freq string, agg Aggregation, origin Date) (*ExtractedDataset, error) {
	f, err := ParseFrequency(freq)
	if err != nil {
		return nil, fmt.Errorf("reshapr: %w", err)
	}
	if agg == "" {
		agg = Mean
	}
	ti, err := timeCoordIndex(ds)
	if err != nil {
		return nil, err
	}
	tc := ds.Coords[ti]
	if len(tc.Times) == 0 {
		return nil, fmt.Errorf("reshapr: cannot resample an empty time axis")
	}

	first := tc.Times[0]
	var buckets [][]int
	var starts []time.Time
	for pos, t := range tc.Times {
		s := f.bucketStart(t, first)
		if len(starts) == 0 || s.After(starts[len(starts)-1]) {
			if len(starts) > 0 {
				for n := f.next(starts[len(starts)-1]); n.Before(s); n = f.next(n) {
					starts = append(starts, n)
					buckets = append(buckets, nil)
				}
			}
			starts = append(starts, s)
			buckets = append(buckets, nil)
		}
		buckets[len(buckets)-1] = append(buckets[len(buckets)-1], pos)
	}

	tb := f.TimeBase()
	if tb == "" {
		Log.WithField("resample_interval", freq).Warn("unrecognized resampling interval; using generic time coordinate metadata")
	}
	nc := &Coordinate{
		Name:    tc.Name,
		Axis:    TimeAxis,
		Source:  tc.Source,
		Indices: tc.Indices,
		Times:   make([]time.Time, len(starts)),
		Attrs:   timeAttrs(tb, origin),
	}
	for i, s := range starts {
		nc.Times[i] = f.label(s)
	}

	o := ds.withCoord(ti, nc)
	o.TimeBase = tb
	o.Aggregate = &Aggregate{Kind: Resample, Reducer: agg, Dim: nc.Name, Buckets: buckets}
	Log.WithFields(logrus.Fields{
		"resample_interval": f.String(),
		"aggregation":       agg,
		"n_times":           len(starts),
	}).Debug("resampled time axis")
	return o, nil
}

// climatologyFields extract the group keys of a climatology.
var climatologyFields = map[string]func(time.Time) int{
	"month":     func(t time.Time) int { return int(t.Month()) },
	"dayofyear": func(t time.Time) int { return t.YearDay() },
	"day":       func(t time.Time) int { return t.Day() },
	"hour":      func(t time.Time) int { return t.Hour() },
}

// groupField returns the name of a climatology group-by field. The name
// may be prefixed with "time.".
func groupField(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "time.")
	if _, ok := climatologyFields[s]; !ok {
		return "", fmt.Errorf("unsupported climatology group-by field %q; expected month, dayofyear, day, or hour", s)
	}
	return s, nil
}

// ClimatologyTime groups the time axis of ds by the time field groupBy
// (e.g. month) and reduces each group with agg (mean if empty). The time
// coordinate is replaced by a coordinate named after the field.
func ClimatologyTime(ds *ExtractedDataset, groupBy string, agg Aggregation) (*ExtractedDataset, error) {
	field, err := groupField(groupBy)
	if err != nil {
		return nil, fmt.Errorf("reshapr: %w", err)
	}
	if agg == "" {
		agg = Mean
	}
	ti, err := timeCoordIndex(ds)
	if err != nil {
		return nil, err
	}
	tc := ds.Coords[ti]
	key := climatologyFields[field]
	groups := make(map[int][]int)
	for pos, t := range tc.Times {
		k := key(t)
		groups[k] = append(groups[k], pos)
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	nc := &Coordinate{
		Name:    field,
		Source:  tc.Source,
		Indices: tc.Indices,
		Values:  make([]float64, len(keys)),
		Attrs: Attributes{
			{"standard_name", field},
			{"long_name", field},
			{"units", "count"},
		},
	}
	buckets := make([][]int, len(keys))
	for i, k := range keys {
		nc.Values[i] = float64(k)
		buckets[i] = groups[k]
	}

	o := ds.withCoord(ti, nc)
	o.Aggregate = &Aggregate{Kind: Climatology, Reducer: agg, Dim: field, Buckets: buckets}
	Log.WithFields(logrus.Fields{
		"group_by":    field,
		"aggregation": agg,
		"n_groups":    len(keys),
	}).Debug("calculated climatology")
	return o, nil
}

// withCoord returns a copy of ds in which the coordinate at position i is
// replaced by c. Variables on the old coordinate are moved onto c.
func (ds *ExtractedDataset) withCoord(i int, c *Coordinate) *ExtractedDataset {
	old := ds.Coords[i].Name
	o := &ExtractedDataset{
		Coords:   make([]*Coordinate, len(ds.Coords)),
		Vars:     make([]*ExtractedVariable, len(ds.Vars)),
		Attrs:    ds.Attrs,
		TimeBase: ds.TimeBase,
	}
	copy(o.Coords, ds.Coords)
	o.Coords[i] = c
	for j, v := range ds.Vars {
		nv := *v
		nv.Dims = make([]string, len(v.Dims))
		for k, d := range v.Dims {
			if d == old {
				d = c.Name
			}
			nv.Dims[k] = d
		}
		o.Vars[j] = &nv
	}
	return o
}
