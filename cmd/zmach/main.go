// Command zmach is a version 3 Z-machine interpreter: play stories in
// the terminal, run them headless, or inspect and disassemble them.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	"golang.org/x/term"

	_ "github.com/tliron/commonlog/simple"
)

var rootCmd = &cobra.Command{
	Use:   "zmach",
	Short: "Version 3 Z-machine interpreter",
	Long:  `zmach runs version 3 Z-code story files: interactive play, headless batch execution, and story inspection tools.`,
}

var (
	verbosity int
	colorMode string
)

func main() {
	rootCmd.Version = buildVersion

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "log more (repeatable)")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "colored output: auto, on or off")
	cobra.OnInitialize(func() {
		commonlog.Configure(verbosity, nil)
		switch colorMode {
		case "on":
			color.NoColor = false
		case "off":
			color.NoColor = true
		case "auto": // fatih/color detects the terminal itself
		default:
			fmt.Fprintf(os.Stderr, "unknown --color mode %q, using auto\n", colorMode)
		}
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
