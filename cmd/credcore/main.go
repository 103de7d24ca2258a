// Command credcore operates a credcore deployment: schema migration,
// account maintenance, policy reports, a reference HTTP server and a load
// generator.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
