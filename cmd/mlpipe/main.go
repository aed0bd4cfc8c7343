// Command mlpipe trains the student performance regression model and serves
// predictions from the persisted artifacts.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
