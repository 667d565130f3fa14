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
	"errors"
	"fmt"
)

// These are the fatal conditions of an extraction. Use errors.Is to test
// for them; the returned errors are usually *ConfigError values that carry
// the file and field involved.
var (
	// ErrConfigNotFound means that a request, model profile, or cluster
	// configuration file could not be found in any of the search locations.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrArchiveNotFound means that the results archive declared by a
	// model profile does not exist.
	ErrArchiveNotFound = errors.New("model results archive not found")

	// ErrNoVariablesSelected means that none of the requested variables
	// exist in the opened dataset.
	ErrNoVariablesSelected = errors.New("no variables selected")

	// ErrConflictingAggregation means that both resampling and a
	// climatology were requested.
	ErrConflictingAggregation = errors.New("`resample` and `climatology` in the same extraction is not supported")

	// ErrClusterUnavailable means that the requested cluster target is
	// malformed or refused the connection.
	ErrClusterUnavailable = errors.New("cluster unavailable")

	// ErrInvalidConfig means that a configuration value is missing or
	// has a value outside of its allowed set.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ConfigError reports a fatal configuration condition together with the
// file and field it concerns.
type ConfigError struct {
	// Err is one of the sentinel errors above.
	Err error

	// File is the configuration file or path involved, if any.
	File string

	// Field is the configuration key involved, if any.
	Field string

	// Msg is an optional human readable diagnostic.
	Msg string
}

func (e *ConfigError) Error() string {
	s := "reshapr: " + e.Err.Error()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Field != "" {
		s += fmt.Sprintf(" (field %q)", e.Field)
	}
	if e.File != "" {
		s += fmt.Sprintf(" (file %s)", e.File)
	}
	return s
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Fields returns the structured context of the error for logging.
func (e *ConfigError) Fields() map[string]interface{} {
	f := make(map[string]interface{})
	if e.File != "" {
		f["file"] = e.File
	}
	if e.Field != "" {
		f["field"] = e.Field
	}
	return f
}

// IsConfigError reports whether err is caused by a configuration
// resolution failure rather than by a failure while processing data.
func IsConfigError(err error) bool {
	for _, e := range []error{ErrConfigNotFound, ErrArchiveNotFound,
		ErrInvalidConfig, ErrConflictingAggregation} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

func invalid(file, field, format string, args ...interface{}) error {
	return &ConfigError{Err: ErrInvalidConfig, File: file, Field: field, Msg: fmt.Sprintf(format, args...)}
}
