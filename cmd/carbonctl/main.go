// Command carbonctl is the operator CLI for the carbon ledger: it prints the
// emission factor table, estimates emissions offline and migrates the schema.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
