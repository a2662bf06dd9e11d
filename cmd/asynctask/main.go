package main

import (
	"os"

	"github.com/Swind/go-async-task/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
