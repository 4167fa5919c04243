// sphinxserve rebuilds Sphinx documentation on change and serves it with
// live browser reload.
package main

import (
	"os"

	"github.com/hupe1980/sphinxserve/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
