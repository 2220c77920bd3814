// Commanddeck tracks milestone work and keeps conflict-resolved agent memory.
package main

import (
	"fmt"
	"os"

	"github.com/swamp-dev/commanddeck/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
