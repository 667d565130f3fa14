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

import "github.com/spatialmodel/reshapr"

// ExitCode returns the process exit code for the result of a command:
// 0 for success, 2 if a configuration could not be resolved, and 1 for
// any other failure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case reshapr.IsConfigError(err):
		return 2
	default:
		return 1
	}
}
