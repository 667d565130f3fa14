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
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spatialmodel/reshapr"
	"github.com/spatialmodel/reshapr/cluster"
	"github.com/spf13/cobra"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage shared clusters",
	Long: `cluster holds the commands for shared clusters. A request whose cluster
is given as host:port obtains its execution slots from the scheduler listening
there, so that concurrent extractions are bounded together.`,
	DisableAutoGenTag: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a cluster scheduler",
	Long: `serve runs a cluster scheduler on --addr that hands out as many
execution slots as the --cluster-config file allows. It runs until it is
interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return Serve(ctx, Cfg.GetString("addr"), Cfg.GetString("cluster-config"))
	},
	DisableAutoGenTag: true,
}

// Serve runs a cluster scheduler on addr for the cluster configuration
// named by config until ctx is done.
func Serve(ctx context.Context, addr, config string) error {
	b, file, err := reshapr.ClusterResolver(Cfg.GetString("clusters-dir")).ReadFile(config)
	if err != nil {
		return err
	}
	cfg, err := cluster.ParseConfig(b, file)
	if err != nil {
		return err
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("reshapr: %w", err)
	}
	return cluster.Serve(ctx, l, cfg)
}
