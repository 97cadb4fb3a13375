// Command billsync validates product catalogs, inspects the local purchase
// cache, and runs reconciliation conformance scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/billsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
