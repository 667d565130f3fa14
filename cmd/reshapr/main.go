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

// Command reshapr is a command-line interface for extracting model
// variable time series from model results archives.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata" // Dataset history timestamps are in Vancouver time.

	"github.com/spatialmodel/reshapr/reshaprutil"
)

func main() {
	if err := reshaprutil.Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(reshaprutil.ExitCode(err))
	}
}
