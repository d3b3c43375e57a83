// Package main is the kotae CLI entry point.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	// A .env next to the binary is optional; real environment variables win.
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
