package main

import (
	"fmt"
	"os"

	"github.com/fleetworks/botflow/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "botflow"}

func main() {
	rootCmd.PersistentFlags().String("db", "", "path to the sqlite database file")
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
