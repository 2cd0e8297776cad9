package main

import (
	"os"

	"github.com/go-splode/go-splode/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
