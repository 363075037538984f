// Command glassbox fits interpretable and black-box classifiers on
// delimited health records and explains their predictions.
package main

import (
	"os"

	"github.com/YuminosukeSato/glassbox/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
