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

package reshaprutil

import (
	"context"
	"errors"

	"github.com/spatialmodel/reshapr"
	"github.com/spatialmodel/reshapr/cluster"
	"github.com/spatialmodel/reshapr/ncf"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract request_file",
	Short: "Extract model variable time series",
	Long: `extract carries out the extraction described by the YAML (or TOML)
request file and writes the result to a netCDF file. The start and end dates
of the request can be overridden with the --start-date and --end-date
options.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := Extract(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cmd.Println(path)
		return nil
	},
	DisableAutoGenTag: true,
}

// Extract loads the request in file, applying the date options, and
// carries out the extraction. It returns the path of the written file.
func Extract(ctx context.Context, file string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	r, err := reshapr.LoadRequest(file, dateOption("start-date"), dateOption("end-date"))
	if err != nil {
		return "", err
	}
	pl := &reshapr.Pipeline{
		Profiles: reshapr.ProfileResolver(Cfg.GetString("profiles-dir")),
		Connect: func(ctx context.Context, target string) (reshapr.Engine, error) {
			return connect(ctx, target, Cfg.GetString("clusters-dir"), Cfg.GetString("metrics-file"))
		},
		GeoRefPath: Cfg.GetString("geo-ref-path"),
	}
	return pl.Extract(ctx, r)
}

// engine is an array engine whose work is bounded by a cluster pool.
type engine struct {
	*ncf.Engine
	pool        cluster.Pool
	metricsFile string
}

// connect connects to the cluster named by target and returns an engine
// that runs on it. An empty target runs on the local processors.
func connect(ctx context.Context, target, clustersDir, metricsFile string) (reshapr.Engine, error) {
	if target == "" {
		return &engine{Engine: ncf.NewEngine(nil), metricsFile: metricsFile}, nil
	}
	pool, err := cluster.Connect(ctx, target, reshapr.ClusterResolver(clustersDir))
	if err != nil {
		return nil, err
	}
	return &engine{Engine: ncf.NewEngine(pool), pool: pool, metricsFile: metricsFile}, nil
}

// Close writes the metrics file, if any, and releases the engine and
// its pool.
func (e *engine) Close() error {
	var errs []error
	if e.metricsFile != "" {
		errs = append(errs, e.Engine.WriteMetrics(e.metricsFile))
	}
	errs = append(errs, e.Engine.Close())
	if e.pool != nil {
		errs = append(errs, e.pool.Close())
	}
	return errors.Join(errs...)
}
