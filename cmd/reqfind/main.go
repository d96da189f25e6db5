// Package main provides the entry point for the reqfind CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/reqfind/cmd/reqfind/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
