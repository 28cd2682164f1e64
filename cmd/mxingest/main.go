package main

import (
	"os"

	"github.com/speedrun-hub/obstacle-engine/internal/cli"
)

func main() {
	cli.MXIngestMain(os.Args[1:])
}
