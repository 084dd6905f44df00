package main

import (
	"os"

	"github.com/tracklight-systems/tracklight/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
