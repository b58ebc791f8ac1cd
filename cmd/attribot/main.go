package main

import (
	"os"

	"github.com/attribot/attribot/cmd/attribot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
