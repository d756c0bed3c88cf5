package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// buildVersion is stamped by the release workflow via -ldflags.
var buildVersion = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the interpreter version",
	Run: func(cmd *cobra.Command, args []string) {
		color.New(color.Bold).Print("zmach ")
		color.New(color.FgCyan).Println(buildVersion)
	},
}
