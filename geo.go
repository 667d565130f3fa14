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
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// geoRefFile returns the path of a local file that holds the geo
// reference dataset of p. Pipeline.GeoRefPath replaces the path in the
// profile. A dataset given as an ERDDAP griddap URL is downloaded in the
// netCDF format to a temporary file, which is removed by cleanup.
func (pl *Pipeline) geoRefFile(ctx context.Context, p *ModelProfile) (path string, cleanup func(), err error) {
	path = os.ExpandEnv(p.GeoRefDataset.Path)
	if pl.GeoRefPath != "" {
		path = os.ExpandEnv(pl.GeoRefPath)
	}
	cleanup = func() {}
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		return path, cleanup, nil
	}
	u := griddapURL(path, p.GeoRefDataset)
	log := Log.WithField("geo_ref_url", u)
	log.Info("downloading geo reference dataset")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", nil, fmt.Errorf("reshapr: geo reference dataset: %w", err)
	}
	client := pl.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("reshapr: downloading geo reference dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.WithField("status", resp.Status).Error("geo reference dataset download failed")
		return "", nil, fmt.Errorf("reshapr: downloading geo reference dataset %s: %s", u, resp.Status)
	}
	f, err := os.CreateTemp("", "reshapr-geo-ref-*.nc")
	if err != nil {
		return "", nil, fmt.Errorf("reshapr: %w", err)
	}
	cleanup = func() { os.Remove(f.Name()) }
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("reshapr: downloading geo reference dataset: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("reshapr: %w", err)
	}
	return f.Name(), cleanup, nil
}

// griddapURL returns the URL of the netCDF file that holds the longitude
// and latitude variables of an ERDDAP griddap dataset. URLs that already
// name a file type or a query are used as they are.
func griddapURL(dataset string, g GeoRef) string {
	if strings.Contains(dataset, "?") || strings.HasSuffix(dataset, ".nc") {
		return dataset
	}
	return dataset + ".nc?" + g.longitudeVar() + "," + g.latitudeVar()
}
