package main

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/phasegate/internal/cmd"
	errs "github.com/Iron-Ham/phasegate/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if errs.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v (see the log under the state directory for details)\n", err)
		}
		os.Exit(1)
	}
}
