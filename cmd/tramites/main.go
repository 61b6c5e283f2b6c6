// Command tramites harvests the public procedures catalog and keeps the
// change logs up to date.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tramites/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
