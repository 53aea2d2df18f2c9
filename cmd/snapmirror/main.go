// Package main is the entry point for the snapmirror CLI.
package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"

	"github.com/raoulx24/snapmirror/cmd/snapmirror/commands"
	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
)

func main() {
	err := commands.Execute()
	if err == nil {
		return
	}

	// ExitErrors were already written to the log sink.
	var exitErr *snaperrors.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
	}
	os.Exit(snaperrors.ExitCode(err))
}
