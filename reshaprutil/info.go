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
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spatialmodel/reshapr"
	"github.com/spf13/cobra"
)

// infoModules are the modules whose versions info reports.
var infoModules = []string{
	"github.com/ctessum/cdf",
	"github.com/scigolib/hdf5",
	"gonum.org/v1/gonum",
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print information about reshapr",
	Long: `info prints the versions of reshapr and the libraries that it reads and
writes files with, and lists the cluster configurations and model profiles
that are available without giving a path.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Info(cmd.OutOrStdout())
	},
	DisableAutoGenTag: true,
}

// Info writes the reshapr version information and the names of the known
// cluster configurations and model profiles to w.
func Info(w io.Writer) error {
	fmt.Fprintf(w, "reshapr, version %s\n", reshapr.Version)
	for _, m := range infoModules {
		fmt.Fprintf(w, "%s, version %s\n", m, moduleVersion(m))
	}
	fmt.Fprintf(w, "go, version %s\n", runtime.Version())

	clusters, err := reshapr.ClusterResolver(Cfg.GetString("clusters-dir")).List()
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "cluster configs:")
	for _, c := range clusters {
		fmt.Fprintf(w, "  %s\n", c)
	}

	profiles, err := reshapr.ProfileResolver(Cfg.GetString("profiles-dir")).List()
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "model profiles:")
	for i := len(profiles) - 1; i >= 0; i-- {
		fmt.Fprintf(w, "  %s\n", profiles[i])
	}
	return nil
}

// moduleVersion returns the version of module m that the binary was built
// with.
func moduleVersion(m string) string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, d := range bi.Deps {
		if d.Path != m {
			continue
		}
		if d.Replace != nil {
			return d.Replace.Version
		}
		return d.Version
	}
	return "unknown"
}
