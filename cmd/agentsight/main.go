package main

import (
	"fmt"
	"os"

	"github.com/agentsight/agentsight/cmd/agentsight/commands"
)

func main() {
	if err := commands.NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
