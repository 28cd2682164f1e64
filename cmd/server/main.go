package main

import (
	"os"

	"github.com/speedrun-hub/obstacle-engine/internal/cli"
)

func main() {
	cli.ServerMain(os.Args[1:])
}
