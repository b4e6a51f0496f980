package main

import (
	"os"

	"github.com/danieljhkim/service-harness/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
