package main

import (
	"os"

	"github.com/wonny/mtfscan/backend/cmd/mtfscan/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
