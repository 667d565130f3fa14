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

// Package reshaprutil contains the command-line interface of reshapr.
package reshaprutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/reshapr"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to reshapr.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the location of a configuration file
              holding values for the options below.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "log-level",
			usage: `
              log-level sets the minimum level of the messages that are
              logged: debug, info, warning, or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "profiles-dir",
			usage: `
              profiles-dir is a directory of model profiles that is searched
              for a model profile that is not found at the path given in an
              extraction request. Profiles distributed with reshapr are
              searched after it.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags(), infoCmd.Flags()},
		},
		{
			name: "clusters-dir",
			usage: `
              clusters-dir is a directory of cluster configuration files that
              is searched for a cluster configuration that is not found at
              the path given in an extraction request. Configurations
              distributed with reshapr are searched after it.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags(), infoCmd.Flags(), serveCmd.Flags()},
		},
		{
			name: "metrics-file",
			usage: `
              metrics-file is the path of a file that extraction metrics are
              written to in the Prometheus text format. No metrics are
              written if it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "geo-ref-path",
			usage: `
              geo-ref-path overrides the geo reference dataset path of the
              model profile. It may be a local netCDF file or an ERDDAP
              griddap dataset URL, which is downloaded when longitudes and
              latitudes are requested.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "start-date",
			usage: `
              start-date overrides the start date of an extraction request.
              The format is YYYY-MM-DD.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "end-date",
			usage: `
              end-date overrides the end date of an extraction request. The
              format is YYYY-MM-DD. A day beyond the end of the month is
              changed to the last day of the month, so 2015-02-31 means
              2015-02-28.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "addr",
			usage: `
              addr is the host:port that the cluster scheduler listens on.`,
			defaultVal: "localhost:8786",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
		{
			name: "cluster-config",
			usage: `
              cluster-config is the cluster configuration file that sets the
              number of execution slots handed out by the scheduler.`,
			defaultVal: "salish_cluster.yaml",
			flagsets:   []*pflag.FlagSet{serveCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("RESHAPR")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(extractCmd)
	Root.AddCommand(infoCmd)
	Root.AddCommand(clusterCmd)
	clusterCmd.AddCommand(serveCmd)
}

func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("reshapr: problem reading configuration file: %v", err)
		}
	}
	return setLogger()
}

// setLogger configures the standard logger from the log-level option and
// points the pipeline at it.
func setLogger() error {
	level, err := logrus.ParseLevel(Cfg.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("reshapr: %v", err)
	}
	logger := logrus.StandardLogger()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	})
	reshapr.Log = logger
	return nil
}

// dateOption returns the named date option as a YYYY-MM-DD string. Dates
// in configuration files may have been decoded as times.
func dateOption(name string) string {
	switch v := Cfg.Get(name).(type) {
	case time.Time:
		return v.Format("2006-01-02")
	default:
		return cast.ToString(v)
	}
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "reshapr",
	Short: "Extract model variable time series from model results archives.",
	Long: `reshapr extracts time series of model variables from large, multi-file
model results archives and writes them to a single netCDF file with a uniform
coordinate system. Use the subcommands specified below to access its
functionality.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'RESHAPR_VAR' where 'VAR' is
the name of the option to be set, in upper case with dashes replaced by
underscores. Refer to https://github.com/spf13/viper for additional
configuration information.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of reshapr.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("reshapr v%s\n", reshapr.Version)
	},
	DisableAutoGenTag: true,
}
