// Package main provides the entry point for the academykb CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/academykb/cmd/academykb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
