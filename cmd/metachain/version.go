package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	versionFormat = "Metachain (C) 2023. %v, version %v-%v (%v %v)"
)

// Version string variables
var (
	version string
	builtBy string
	builtAt string
	commit  string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version of the metachain binary",
	Long:  "print version of the metachain binary",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
		os.Exit(0)
	},
}

func getMetachainVersion() string {
	return fmt.Sprintf(versionFormat, "metachain", version, commit, builtBy, builtAt)
}

func printVersion() {
	fmt.Println(getMetachainVersion())
}
