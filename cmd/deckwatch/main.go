package main

import (
	"os"

	"github.com/taskdeck/deckstream/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
