// Package main is the entry point for the Bugspot server and admin CLI.
package main

import "github.com/bugspot/bugspot/cmd/bugspot/commands"

// Set by release ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	commands.Execute(version, commit)
}
