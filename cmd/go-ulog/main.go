package main

import (
	"os"

	"github.com/foxglove/go-ulog/cmd/go-ulog/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
