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
	"strconv"
	"strings"
	"time"
)

// Date is a calendar day. The underlying time is midnight UTC.
type Date struct {
	time.Time
}

// NewDate returns the date for the given year, month, and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date in YYYY-MM-DD format. A trailing time of day
// (as in 2015-04-01T00:00:00Z) is ignored.
func ParseDate(s string) (Date, error) {
	return parseDate(s, false)
}

// ParseEndDate is like ParseDate, except that a day of month beyond the end
// of the month is replaced by the last day of the month, so 2015-02-31
// becomes 2015-02-28. This supports shell loops that always pass day 31.
func ParseEndDate(s string) (Date, error) {
	return parseDate(s, true)
}

func parseDate(s string, clampDay bool) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("reshapr: invalid date %q; expected YYYY-MM-DD", s)
	}
	var ymd [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return Date{}, fmt.Errorf("reshapr: invalid date %q; expected YYYY-MM-DD", s)
		}
		ymd[i] = v
	}
	if ymd[1] < 1 || ymd[1] > 12 || ymd[2] < 1 {
		return Date{}, fmt.Errorf("reshapr: invalid date %q", s)
	}
	if last := daysIn(ymd[0], time.Month(ymd[1])); ymd[2] > last {
		if !clampDay {
			return Date{}, fmt.Errorf("reshapr: invalid date %q: day is out of range for month", s)
		}
		ymd[2] = last
	}
	return NewDate(ymd[0], time.Month(ymd[1]), ymd[2]), nil
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// String returns the date in YYYY-MM-DD format.
func (d Date) String() string { return d.Format("2006-01-02") }

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalJSON implements json.Marshaler. It overrides the method promoted
// from time.Time.
func (d Date) MarshalJSON() ([]byte, error) { return []byte(strconv.Quote(d.String())), nil }

// UnmarshalJSON implements json.Unmarshaler. It overrides the method
// promoted from time.Time, which requires RFC 3339 timestamps.
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("reshapr: invalid date %s", b)
	}
	return d.UnmarshalText([]byte(s))
}

// Granularity is the size of the date units that a file pattern is
// expanded for.
type Granularity string

// These are the supported granularities.
const (
	ByDay   Granularity = "day"
	ByMonth Granularity = "month"
)

// DateRange returns the date units between start and end, inclusive, in
// ascending order. For month granularity each unit is the first day of the
// month.
func DateRange(start, end Date, g Granularity) []Date {
	var o []Date
	switch g {
	case ByMonth:
		d := NewDate(start.Year(), start.Month(), 1)
		for !d.After(end.Time) {
			o = append(o, d)
			d = NewDate(d.Year(), d.Month()+1, 1)
		}
	default:
		for d := start; !d.After(end.Time); d = NewDate(d.Year(), d.Month(), d.Day()+1) {
			o = append(o, d)
		}
	}
	return o
}

// dateTokens are the substitutions available to file patterns.
var dateTokens = []struct {
	name   string
	format func(Date) string
}{
	{"ddmmmyy", func(d Date) string { return strings.ToLower(d.Format("02Jan06")) }},
	{"yyyymmdd", func(d Date) string { return d.Format("20060102") }},
	{"yyyymm01", func(d Date) string { return d.Format("200601") + "01" }},
	{"yyyymm_end", func(d Date) string {
		return NewDate(d.Year(), d.Month(), daysIn(d.Year(), d.Month())).Format("20060102")
	}},
	{"yyyy", func(d Date) string { return d.Format("2006") }},
	{"nemo_yyyymmdd", func(d Date) string { return d.Format("y2006m01d02") }},
	{"nemo_yyyymm", func(d Date) string { return d.Format("y2006m01") }},
}

// FormatPattern replaces every {token} in pattern with the given date
// formatted for that token. The supported tokens are ddmmmyy (28feb22),
// yyyymmdd (20220228), yyyymm01 (20220201), yyyymm_end (20220228),
// yyyy (2022), nemo_yyyymm (y2022m02), and nemo_yyyymmdd (y2022m02d28).
func FormatPattern(pattern string, d Date) string {
	for _, t := range dateTokens {
		pattern = strings.Replace(pattern, "{"+t.name+"}", t.format(d), -1)
	}
	return pattern
}
