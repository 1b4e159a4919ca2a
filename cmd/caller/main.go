package main

import (
	"os"

	"github.com/eleven-am/livecaption/cmd/caller/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
