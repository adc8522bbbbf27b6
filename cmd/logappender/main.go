package main

import (
	"os"

	"github.com/alpacahq/logappender/cmd"
)

// This is the launcher for all logappender commands

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
