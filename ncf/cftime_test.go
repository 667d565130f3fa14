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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeUnits(t *testing.T) {
	tests := []struct {
		units  string
		unit   time.Duration
		origin time.Time
	}{
		{"seconds since 1900-01-01 00:00:00", time.Second, time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"hours since 2015-01-01 00:30:00", time.Hour, time.Date(2015, 1, 1, 0, 30, 0, 0, time.UTC)},
		{"days since 2007-01-01 12:00:00", 24 * time.Hour, time.Date(2007, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"days since 2007-1-1", 24 * time.Hour, time.Date(2007, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"minutes since 2011-09-22T06:00:00Z", time.Minute, time.Date(2011, 9, 22, 6, 0, 0, 0, time.UTC)},
	}
	for _, test := range tests {
		t.Run(test.units, func(t *testing.T) {
			u, err := ParseTimeUnits(test.units)
			require.NoError(t, err)
			assert.Equal(t, test.unit, u.Unit)
			assert.True(t, test.origin.Equal(u.Origin), "origin %v", u.Origin)
		})
	}
	for _, bad := range []string{"hours", "fortnights since 2015-01-01", "hours since yesterday"} {
		_, err := ParseTimeUnits(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimeUnitsRoundTrip(t *testing.T) {
	u, err := ParseTimeUnits("days since 2007-01-01 12:00:00")
	require.NoError(t, err)
	d := time.Date(2015, 4, 1, 12, 0, 0, 0, time.UTC)
	v := u.Encode(d)
	assert.Equal(t, 3012.0, v)
	assert.True(t, d.Equal(u.Decode(v)))
	assert.True(t, time.Date(2007, 1, 2, 0, 0, 0, 0, time.UTC).Equal(u.Decode(0.5)))
}

func TestCheckCalendar(t *testing.T) {
	assert.NoError(t, checkCalendar(""))
	assert.NoError(t, checkCalendar("gregorian"))
	assert.NoError(t, checkCalendar("proleptic_gregorian"))
	assert.Error(t, checkCalendar("noleap"))
}
