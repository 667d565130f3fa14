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

// Package reshapr extracts time series of model variables from large,
// multi-file ocean and atmosphere model archives and writes them to a
// single netCDF file with a uniform coordinate system.
//
// The package plans the extraction: it resolves requests against model
// profiles, expands file paths, chooses selections, output coordinates,
// temporal aggregation, and on-disk encoding. The array computation itself
// is delegated to an Engine (see package ncf).
package reshapr

import (
	"embed"
	"io/fs"

	"github.com/sirupsen/logrus"
)

// Version gives the version number.
const Version = "1.0.0"

//go:embed model_profiles/*.yaml cluster_configs/*.yaml
var bundled embed.FS

// KnownProfiles holds the model profiles that are distributed with reshapr.
var KnownProfiles fs.FS

// KnownClusters holds the cluster configurations that are distributed with
// reshapr.
var KnownClusters fs.FS

// Log receives the log messages of the extraction pipeline.
var Log logrus.FieldLogger = logrus.StandardLogger()

func init() {
	var err error
	if KnownProfiles, err = fs.Sub(bundled, "model_profiles"); err != nil {
		panic(err)
	}
	if KnownClusters, err = fs.Sub(bundled, "cluster_configs"); err != nil {
		panic(err)
	}
}
