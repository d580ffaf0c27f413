package main

import (
	"fmt"
	"os"

	"gridsync/internal/cli"
	"gridsync/internal/config"
)

func main() {
	config.LoadDotenv()

	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
