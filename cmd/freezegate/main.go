// Command freezegate runs the cluster freeze window admission gatekeeper:
// the admission webhook and REST control-plane server, schema migrations
// for the SQL-backed deployment profiles, and a template-linting helper.
package main

import (
	"fmt"
	"os"

	"github.com/freezegate/freezegate/cmd/freezegate/cmd"
)

var version = "dev"

func main() {
	if err := cmd.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
