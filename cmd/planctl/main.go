// Command planctl drives the scheduling pipeline from a terminal: parse a
// request, generate a schedule against the configured backend or list
// saved schedules.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
