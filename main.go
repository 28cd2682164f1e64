// Copyright 2017 The Nakama Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"

	"github.com/speedrun-hub/obstacle-engine/internal/cli"
)

// main dispatches to one of the engine's three entrypoints by leading
// subcommand, defaulting to running the server when none is given, same
// as the original binary's doctor/admin/migrate subcommand split.
func main() {
	if len(os.Args) < 2 {
		cli.ServerMain(nil)
		return
	}

	switch os.Args[1] {
	case "server":
		cli.ServerMain(os.Args[2:])
	case "migrate":
		cli.MigrateMain(os.Args[2:])
	case "mxingest":
		cli.MXIngestMain(os.Args[2:])
	default:
		cli.ServerMain(os.Args[1:])
	}
}
