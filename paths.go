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
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// DatasetPaths returns the paths of the files holding the requested
// variables group between the request's start and end dates, in ascending
// date order. The files are not checked for existence.
func DatasetPaths(r *Request, p *ModelProfile) ([]string, error) {
	f, err := p.Family(r.Dataset.TimeBase, r.Dataset.VariablesGroup)
	if err != nil {
		return nil, err
	}
	log := Log.WithFields(logrus.Fields{
		"results_archive_path": p.ResultsArchive.Path,
		"time_base":            r.Dataset.TimeBase,
		"vars_group":           r.Dataset.VariablesGroup,
		"nc_files_pattern":     f.FilePattern,
		"start_date":           r.StartDate.String(),
		"end_date":             r.EndDate.String(),
	})
	dates := DateRange(r.StartDate, r.EndDate, f.Granularity)
	paths := make([]string, len(dates))
	for i, d := range dates {
		paths[i] = filepath.Join(p.ResultsArchive.Path, FormatPattern(f.FilePattern, d))
	}
	log.WithField("n_datasets", len(paths)).Debug("collected dataset paths")
	return paths, nil
}

// ChunkSize maps the profile's abstract chunk sizes onto the axis names of
// the requested dataset family. The depth chunk size is included only if
// the profile declares one and the family has a depth coordinate. The
// profile is not modified.
func ChunkSize(r *Request, p *ModelProfile) (map[string]int, error) {
	f, err := p.Family(r.Dataset.TimeBase, r.Dataset.VariablesGroup)
	if err != nil {
		return nil, err
	}
	names := map[string]string{
		"time": p.TimeCoord.Name,
		"y":    p.YCoord.Name,
		"x":    p.XCoord.Name,
	}
	if f.DepthCoord != "" {
		names["depth"] = f.DepthCoord
	}
	chunks := make(map[string]int, len(p.ChunkSize))
	for abstract, size := range p.ChunkSize {
		if name, ok := names[abstract]; ok {
			chunks[name] = size
		}
	}
	Log.WithField("chunk_size", chunks).Debug("chunk size for dataset loading")
	return chunks, nil
}
