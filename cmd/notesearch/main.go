// Package main provides the entry point for the notesearch CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/notesearch/cmd/notesearch/cmd"
	"github.com/Aman-CERP/notesearch/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
		os.Exit(1)
	}
}
