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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"
)

// ModelProfile is the static description of one model product: its axis
// names, chunking, file layout, and time origin.
type ModelProfile struct {
	Name        string `json:"name" toml:"name"`
	Description string `json:"description" toml:"description"`

	TimeCoord struct {
		Name string `json:"name" toml:"name"`
	} `json:"time coord" toml:"time coord"`
	YCoord AxisCoord `json:"y coord" toml:"y coord"`
	XCoord AxisCoord `json:"x coord" toml:"x coord"`

	// ChunkSize holds the abstract chunk sizes, keyed by time, depth, y,
	// and x. It must not be modified after loading.
	ChunkSize map[string]int `json:"chunk size" toml:"chunk size"`

	GeoRefDataset GeoRef `json:"geo ref dataset" toml:"geo ref dataset"`

	ExtractionTimeOrigin Date `json:"extraction time origin" toml:"extraction time origin"`

	ResultsArchive struct {
		Path     string                                  `json:"path" toml:"path"`
		Datasets map[TimeBase]map[string]DatasetFamily `json:"datasets" toml:"datasets"`
	} `json:"results archive" toml:"results archive"`

	// UnusedVariables are never extracted from datasets of this model.
	// They are read from unused-variables.yaml next to the profile.
	UnusedVariables []string `json:"-" toml:"-"`

	file string
}

// AxisCoord describes the y or x axis of a model grid.
type AxisCoord struct {
	Name string `json:"name" toml:"name"`

	// Units and Comment override the default grid index metadata,
	// e.g. for grids whose axes are distances in metres.
	Units   string `json:"units,omitempty" toml:"units"`
	Comment string `json:"comment,omitempty" toml:"comment"`
}

// GeoRef locates the dataset holding the longitudes and latitudes of the
// model grid.
type GeoRef struct {
	Path         string `json:"path" toml:"path"`
	YCoord       string `json:"y coord" toml:"y coord"`
	XCoord       string `json:"x coord" toml:"x coord"`
	LongitudeVar string `json:"longitude var,omitempty" toml:"longitude var"`
	LatitudeVar  string `json:"latitude var,omitempty" toml:"latitude var"`
}

// DatasetFamily describes the files holding one variables group at one
// time base.
type DatasetFamily struct {
	// FilePattern is the path of each file relative to the results
	// archive, containing date tokens (see FormatPattern).
	FilePattern string `json:"file pattern" toml:"file pattern"`

	// DepthCoord is the name of the depth axis. It is empty for surface
	// fields.
	DepthCoord string `json:"depth coord,omitempty" toml:"depth coord"`

	// Granularity is the date unit that files are stored by. It defaults
	// to month for the month time base and to day otherwise.
	Granularity Granularity `json:"granularity,omitempty" toml:"granularity"`
}

// File returns the path the profile was loaded from.
func (p *ModelProfile) File() string { return p.file }

// Family returns the dataset family for the given time base and variables
// group.
func (p *ModelProfile) Family(tb TimeBase, group string) (DatasetFamily, error) {
	groups, ok := p.ResultsArchive.Datasets[tb]
	if !ok {
		return DatasetFamily{}, invalid(p.file, "dataset.time base",
			"model profile %s has no datasets for time base %q", p.Name, tb)
	}
	f, ok := groups[group]
	if !ok {
		return DatasetFamily{}, invalid(p.file, "dataset.variables group",
			"model profile %s has no %q variables group for time base %q", p.Name, group, tb)
	}
	if f.Granularity == "" {
		f.Granularity = ByDay
		if tb == Month {
			f.Granularity = ByMonth
		}
	}
	return f, nil
}

// longitudeVar and latitudeVar return the names of the geo-reference
// variables, falling back to longitude and latitude.
func (g GeoRef) longitudeVar() string {
	if g.LongitudeVar != "" {
		return g.LongitudeVar
	}
	return "longitude"
}

func (g GeoRef) latitudeVar() string {
	if g.LatitudeVar != "" {
		return g.LatitudeVar
	}
	return "latitude"
}

// Resolver locates configuration files. A file is looked for at the path
// as given, then in Dir, and finally in Known.
type Resolver struct {
	// Dir is an optional directory of user-maintained files.
	Dir string

	// Known holds the files distributed with reshapr.
	Known fs.FS
}

// ProfileResolver returns a Resolver for model profiles that searches dir
// and then the bundled profiles.
func ProfileResolver(dir string) Resolver {
	return Resolver{Dir: dir, Known: KnownProfiles}
}

// ClusterResolver returns a Resolver for cluster configurations that
// searches dir and then the bundled configurations.
func ClusterResolver(dir string) Resolver {
	return Resolver{Dir: dir, Known: KnownClusters}
}

// ReadFile returns the contents of the named file and the location it was
// found at. It returns an error wrapping ErrConfigNotFound if the file
// is not in any of the search locations.
func (r Resolver) ReadFile(name string) ([]byte, string, error) {
	name = os.ExpandEnv(name)
	b, err := ioutil.ReadFile(name)
	if err == nil {
		return b, name, nil
	} else if !os.IsNotExist(err) {
		return nil, name, fmt.Errorf("reshapr: reading %s: %w", name, err)
	}
	if r.Dir != "" {
		p := filepath.Join(os.ExpandEnv(r.Dir), name)
		if b, err := ioutil.ReadFile(p); err == nil {
			return b, p, nil
		}
	}
	if r.Known != nil {
		p := path.Clean(filepath.ToSlash(name))
		if b, err := fs.ReadFile(r.Known, p); err == nil {
			return b, "bundled:" + p, nil
		}
	}
	return nil, name, &ConfigError{Err: ErrConfigNotFound, File: name}
}

// unusedVariablesFile lists variables to drop. It lives with the model
// profiles but is not one.
const unusedVariablesFile = "unused-variables.yaml"

// List returns the names of the files available in Dir and Known.
func (r Resolver) List() ([]string, error) {
	names := make(map[string]struct{})
	if r.Known != nil {
		matches, err := fs.Glob(r.Known, "*.yaml")
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			names[m] = struct{}{}
		}
	}
	if r.Dir != "" {
		matches, err := filepath.Glob(filepath.Join(os.ExpandEnv(r.Dir), "*.yaml"))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			names[filepath.Base(m)] = struct{}{}
		}
	}
	o := make([]string, 0, len(names))
	for n := range names {
		if n == unusedVariablesFile {
			continue
		}
		o = append(o, n)
	}
	sort.Strings(o)
	return o, nil
}

// unmarshal decodes YAML, or TOML if the file name ends in .toml.
func unmarshal(b []byte, file string, v interface{}) error {
	if strings.HasSuffix(strings.ToLower(file), ".toml") {
		_, err := toml.Decode(string(b), v)
		return err
	}
	j, err := yamlToJSON(b)
	if err != nil {
		return err
	}
	return json.Unmarshal(j, v)
}

// yamlToJSON converts a YAML document to JSON so that it can be decoded
// through the json struct tags. Scalars are resolved with the YAML 1.2
// core schema: keys such as y and n are strings, and timestamps are kept
// as written.
func yamlToJSON(b []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	v, err := yamlValue(&doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func yamlValue(n *yaml.Node) (interface{}, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return yamlValue(n.Content[0])
	case yaml.AliasNode:
		return yamlValue(n.Alias)
	case yaml.MappingNode:
		m := make(map[string]interface{}, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := yamlValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m[n.Content[i].Value] = v
		}
		return m, nil
	case yaml.SequenceNode:
		s := make([]interface{}, len(n.Content))
		for i, c := range n.Content {
			v, err := yamlValue(c)
			if err != nil {
				return nil, err
			}
			s[i] = v
		}
		return s, nil
	}
	switch n.ShortTag() {
	case "!!str", "!!timestamp", "!!binary":
		return n.Value, nil
	case "!!null":
		return nil, nil
	}
	var v interface{}
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// LoadModelProfile reads the named model profile using r. It fails with
// ErrConfigNotFound if the profile cannot be found and with
// ErrArchiveNotFound if the profile's results archive does not exist.
func (r Resolver) LoadModelProfile(name string) (*ModelProfile, error) {
	b, file, err := r.ReadFile(name)
	if err != nil {
		Log.WithField("model_profile_yaml", file).Error("model profile file not found")
		return nil, err
	}
	log := Log.WithField("model_profile_yaml", file)
	p := new(ModelProfile)
	if err := unmarshal(b, file, p); err != nil {
		return nil, invalid(file, "", "parsing model profile: %v", err)
	}
	p.file = file
	log = Log.WithFields(p.logFields())
	log.Debug("loaded model profile")

	unused, err := r.loadUnusedVariables(file)
	if err != nil {
		return nil, err
	}
	p.UnusedVariables = unused

	if err := p.validate(); err != nil {
		return nil, err
	}

	archive := os.ExpandEnv(p.ResultsArchive.Path)
	log = log.WithField("results_archive", archive)
	if _, err := os.Stat(archive); err != nil {
		log.Error("model results archive not found")
		return nil, &ConfigError{Err: ErrArchiveNotFound, File: file, Field: "results archive.path", Msg: archive}
	}
	p.ResultsArchive.Path = archive
	return p, nil
}

// loadUnusedVariables reads unused-variables.yaml from the directory the
// profile was found in, falling back to the bundled list.
func (r Resolver) loadUnusedVariables(profileFile string) ([]string, error) {
	const name = unusedVariablesFile
	var b []byte
	var err error
	if strings.HasPrefix(profileFile, "bundled:") {
		b, err = fs.ReadFile(r.Known, name)
	} else {
		b, err = ioutil.ReadFile(filepath.Join(filepath.Dir(profileFile), name))
		if errors.Is(err, os.ErrNotExist) && r.Known != nil {
			b, err = fs.ReadFile(r.Known, name)
		}
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reshapr: reading %s: %w", name, err)
	}
	var vars []string
	if err := unmarshal(b, name, &vars); err != nil {
		return nil, invalid(name, "", "parsing unused variables: %v", err)
	}
	return vars, nil
}

func (p *ModelProfile) validate() error {
	required := []struct{ field, val string }{
		{"time coord.name", p.TimeCoord.Name},
		{"y coord.name", p.YCoord.Name},
		{"x coord.name", p.XCoord.Name},
		{"results archive.path", p.ResultsArchive.Path},
	}
	for _, r := range required {
		if r.val == "" {
			return invalid(p.file, r.field, "model profile is missing a required value")
		}
	}
	if len(p.ChunkSize) == 0 {
		return invalid(p.file, "chunk size", "model profile is missing a required value")
	}
	for k := range p.ChunkSize {
		switch k {
		case "time", "depth", "y", "x":
		default:
			return invalid(p.file, "chunk size", "unknown axis %q; expected time, depth, y, or x", k)
		}
	}
	if p.ExtractionTimeOrigin.IsZero() {
		return invalid(p.file, "extraction time origin", "model profile is missing a required value")
	}
	return nil
}

// logFields returns the fields identifying a profile in log messages.
func (p *ModelProfile) logFields() logrus.Fields {
	return logrus.Fields{"model_profile": p.Name, "model_profile_yaml": p.file}
}
