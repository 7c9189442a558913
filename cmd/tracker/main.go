// Package main is the entry point for the tracker CLI.
package main

import (
	"fmt"
	"os"

	"github.com/runoshun/tracker/internal/app"
	"github.com/runoshun/tracker/internal/cli"
)

// version is set at build time using -ldflags.
var version = "dev"

// newRootCommand is replaced in tests.
var newRootCommand = cli.NewRootCommand

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// The container is built by the root command once --dir and --store are parsed
	rootCmd := newRootCommand(app.New, version)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}
