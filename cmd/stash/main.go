package main

import (
	"os"

	"github.com/MrSnakeDoc/stash/cmd/stash/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
