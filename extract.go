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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/reshapr/internal/hash"
)

// Pipeline runs extractions.
type Pipeline struct {
	// Profiles locates model profiles.
	Profiles Resolver

	// Connect returns an Engine that executes on the cluster named by a
	// request: a cluster configuration file or the host:port of a
	// running scheduler.
	Connect func(ctx context.Context, cluster string) (Engine, error)

	// Now returns the current time. It defaults to time.Now.
	Now func() time.Time

	// GeoRefPath, if not empty, replaces the path of the geo reference
	// dataset of the model profile. It may be a local netCDF file or an
	// ERDDAP griddap dataset URL.
	GeoRefPath string

	// Client downloads geo reference datasets. It defaults to
	// http.DefaultClient.
	Client *http.Client
}

// historyZone is the time zone of dataset history timestamps.
const historyZone = "America/Vancouver"

// Extract carries out the extraction described by r and returns the path
// of the file that it wrote.
func (pl *Pipeline) Extract(ctx context.Context, r *Request) (string, error) {
	tStart := time.Now()
	// Rejected here again so that no files are touched.
	if _, err := r.aggregationMode(); err != nil {
		Log.WithField("config_file", r.file).Error(err.Error())
		return "", err
	}
	p, err := pl.Profiles.LoadModelProfile(r.Dataset.ModelProfile)
	if err != nil {
		return "", err
	}
	paths, err := DatasetPaths(r, p)
	if err != nil {
		return "", err
	}
	chunks, err := ChunkSize(r, p)
	if err != nil {
		return "", err
	}
	ncPath := OutputPath(r)
	if fi, err := os.Stat(filepath.Dir(ncPath)); err != nil || !fi.IsDir() {
		return "", invalid(r.file, "extracted dataset.dest dir", "%s is not a directory", filepath.Dir(ncPath))
	}

	eng, err := pl.Connect(ctx, r.Cluster)
	if err != nil {
		return "", err
	}
	defer eng.Close()

	drop, err := dropVars(ctx, eng, paths[0], chunks, r, p)
	if err != nil {
		return "", err
	}
	ds, err := eng.Open(ctx, paths, OpenOptions{Chunks: chunks, Drop: drop, Parallel: true})
	if err != nil {
		return "", err
	}
	defer ds.Close()
	Log.WithField("n_datasets", len(paths)).Debug("opened dataset")

	coords, err := OutputCoords(ds, r, p)
	if err != nil {
		return "", err
	}
	vars, err := ExtractedVars(ds, coords, r)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			Log.WithFields(ce.Fields()).Error(ce.Err.Error())
		}
		return "", err
	}
	if r.IncludeLonsLats {
		geoPath, cleanup, err := pl.geoRefFile(ctx, p)
		if err != nil {
			return "", err
		}
		defer cleanup()
		geo, err := eng.Open(ctx, []string{geoPath}, OpenOptions{})
		if err != nil {
			return "", fmt.Errorf("reshapr: opening geo reference dataset: %w", err)
		}
		defer geo.Close()
		lonLats, err := LonLatVars(geo, coords, p)
		if err != nil {
			return "", err
		}
		vars = append(vars, lonLats...)
	}

	now := time.Now
	if pl.Now != nil {
		now = pl.Now
	}
	eds := &ExtractedDataset{
		Coords:   coords,
		Vars:     vars,
		Attrs:    datasetAttrs(r, now()),
		TimeBase: r.Dataset.TimeBase,
	}
	if eds, err = AggregateTime(eds, r, p.ExtractionTimeOrigin); err != nil {
		return "", err
	}

	plan := PlanEncoding(eds, p.ExtractionTimeOrigin, r.Deflate())
	unlimited := UnlimitedDim(eds)
	log := Log.WithFields(logrus.Fields{
		"nc_path":   ncPath,
		"nc_format": r.OutputFormat(),
		"plan":      hash.Hash(plan),
	})
	log.Debug("prepared netCDF write params")

	if err := eng.Write(ctx, eds, ncPath, plan, r.OutputFormat(), unlimited); err != nil {
		return "", err
	}
	log.Info("wrote netCDF file")
	Log.WithField("t_total", time.Since(tStart).Seconds()).Info("total time")
	return ncPath, nil
}

// dropVars returns the variables to exclude when opening the dataset: the
// data variables of the first file that were not requested, and the
// model's unused variables.
func dropVars(ctx context.Context, eng Engine, first string, chunks map[string]int, r *Request, p *ModelProfile) ([]string, error) {
	ds, err := eng.Open(ctx, []string{first}, OpenOptions{Chunks: chunks})
	if err != nil {
		return nil, err
	}
	defer ds.Close()
	requested := make(map[string]bool, len(r.ExtractVariables))
	for _, v := range r.ExtractVariables {
		requested[v] = true
	}
	drop := make(map[string]bool)
	for _, v := range ds.DataVars() {
		if !requested[v] {
			drop[v] = true
		}
	}
	for _, v := range p.UnusedVariables {
		drop[v] = true
	}
	o := make([]string, 0, len(drop))
	for v := range drop {
		o = append(o, v)
	}
	sort.Strings(o)
	return o, nil
}

// datasetName returns the name of the extracted dataset, which includes
// the extraction dates.
func datasetName(r *Request) string {
	return fmt.Sprintf("%s_%s_%s", r.ExtractedDataset.Name,
		r.StartDate.Format("20060102"), r.EndDate.Format("20060102"))
}

// OutputPath returns the path of the file that r is written to.
func OutputPath(r *Request) string {
	return filepath.Join(os.ExpandEnv(r.ExtractedDataset.DestDir), datasetName(r)+".nc")
}

// datasetAttrs returns the global attributes of the extracted dataset.
func datasetAttrs(r *Request, now time.Time) Attributes {
	if loc, err := time.LoadLocation(historyZone); err == nil {
		now = now.In(loc)
	} else {
		now = now.UTC()
	}
	return Attributes{
		{"name", datasetName(r)},
		{"description", r.ExtractedDataset.Description},
		{"history", fmt.Sprintf("%s: Generated by `reshapr extract %s`", now.Format("2006-01-02 15:04"), r.file)},
		{"Conventions", "CF-1.6"},
	}
}
