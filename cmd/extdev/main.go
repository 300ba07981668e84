// extdev runs the build, reload and browser loop of a browser extension
// project.
package main

import (
	"os"

	"github.com/hupe1980/extdev/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
