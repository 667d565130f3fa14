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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters that an Engine updates.
type Metrics struct {
	FilesOpened   prometheus.Counter
	SlabsRead     *prometheus.CounterVec
	BytesWritten  prometheus.Counter
	WriteDuration *prometheus.HistogramVec
}

// NewMetrics registers the engine metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FilesOpened: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "reshapr",
				Name:      "files_opened_total",
				Help:      "Total number of model results files opened",
			},
		),
		SlabsRead: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reshapr",
				Name:      "slabs_read_total",
				Help:      "Total number of slabs read, by variable",
			},
			[]string{"variable"},
		),
		BytesWritten: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "reshapr",
				Name:      "bytes_written_total",
				Help:      "Total number of bytes in written netCDF files",
			},
		),
		WriteDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reshapr",
				Name:      "write_duration_seconds",
				Help:      "Duration of netCDF file writes in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
			},
			[]string{"format"},
		),
	}
}
