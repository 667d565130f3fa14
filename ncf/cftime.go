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
	"fmt"
	"math"
	"strings"
	"time"
)

// TimeUnits is a parsed CF time units string such as
// "seconds since 1900-01-01 00:00:00".
type TimeUnits struct {
	Unit   time.Duration
	Origin time.Time
}

var timeUnitNames = map[string]time.Duration{
	"seconds": time.Second, "second": time.Second, "secs": time.Second, "sec": time.Second, "s": time.Second,
	"minutes": time.Minute, "minute": time.Minute, "mins": time.Minute, "min": time.Minute,
	"hours": time.Hour, "hour": time.Hour, "hrs": time.Hour, "hr": time.Hour, "h": time.Hour,
	"days": 24 * time.Hour, "day": 24 * time.Hour, "d": 24 * time.Hour,
}

var originLayouts = []string{
	"2006-1-2 15:04:05.999999999",
	"2006-1-2T15:04:05.999999999",
	"2006-1-2 15:04",
	"2006-1-2",
}

// ParseTimeUnits parses a CF time units string.
func ParseTimeUnits(s string) (TimeUnits, error) {
	parts := strings.SplitN(strings.TrimSpace(s), " since ", 2)
	if len(parts) != 2 {
		return TimeUnits{}, fmt.Errorf("ncf: invalid time units %q", s)
	}
	unit, ok := timeUnitNames[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return TimeUnits{}, fmt.Errorf("ncf: unsupported time unit in %q", s)
	}
	origin := strings.TrimSpace(parts[1])
	origin = strings.TrimSuffix(origin, "Z")
	origin = strings.TrimSuffix(origin, " UTC")
	origin = strings.TrimSuffix(origin, " +00:00")
	for _, layout := range originLayouts {
		if t, err := time.ParseInLocation(layout, origin, time.UTC); err == nil {
			return TimeUnits{Unit: unit, Origin: t}, nil
		}
	}
	return TimeUnits{}, fmt.Errorf("ncf: invalid time origin in %q", s)
}

// Decode converts a time value to a time.
func (u TimeUnits) Decode(v float64) time.Time {
	return u.Origin.Add(time.Duration(math.Round(v * float64(u.Unit))))
}

// Encode converts a time to a time value.
func (u TimeUnits) Encode(t time.Time) float64 {
	return float64(t.Sub(u.Origin)) / float64(u.Unit)
}

// checkCalendar returns an error for calendars that time.Time cannot
// represent.
func checkCalendar(c string) error {
	switch strings.ToLower(c) {
	case "", "standard", "gregorian", "proleptic_gregorian":
		return nil
	}
	return fmt.Errorf("ncf: unsupported calendar %q", c)
}
