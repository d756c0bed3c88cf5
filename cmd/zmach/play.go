package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.zmach.net/zmach/cli"
	"go.zmach.net/zmach/tui"
)

var playCmd = &cobra.Command{
	Use:   "play [flags] <story.z3>",
	Short: "Play a story in the full-screen interface",
	Args:  cobra.ExactArgs(1),
	RunE:  playStory,
}

func init() {
	playCmd.Flags().Int64("seed", 0, "fix the random seed (0 seeds from the clock)")
}

func playStory(cmd *cobra.Command, args []string) error {
	if !isTerminal(os.Stdout) {
		return fmt.Errorf("play needs a terminal; use run for piped sessions")
	}
	story, err := cli.LoadStory(args[0])
	if err != nil {
		return err
	}
	settings, err := cli.LoadSettings(".")
	if err != nil {
		return err
	}
	if seed, _ := cmd.Flags().GetInt64("seed"); seed != 0 {
		settings.Machine.Seed = seed
	}
	p, err := tui.New(context.Background(), story, settings)
	if err != nil {
		return reportFault(err)
	}
	if err := p.Run(); err != nil {
		return reportFault(err)
	}
	return nil
}
