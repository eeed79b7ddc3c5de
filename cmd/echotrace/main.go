package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "echotrace"}

	root.AddCommand(serveCMD(), migrateCMD(), registerCMD(), compareCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
