package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"go.zmach.net/zmach/cli"
	"go.zmach.net/zmach/vm"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <story.z3>",
	Short: "Run a story headless on stdin/stdout",
	Long:  `Run a story without the full-screen interface: game text goes to stdout, commands come from stdin or a script file. Suited to piping and regression transcripts.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStory,
}

func init() {
	runCmd.Flags().String("script", "", "read commands from a file instead of stdin")
	runCmd.Flags().Int64("seed", 0, "fix the random seed (0 seeds from the clock)")
	runCmd.Flags().Int("limit", 0, "stop after this many instructions (0 is unlimited)")
	runCmd.Flags().String("transcript", "", "append game output to this file")
}

func runStory(cmd *cobra.Command, args []string) error {
	log := commonlog.GetLogger("zmach.run")

	story, err := cli.LoadStory(args[0])
	if err != nil {
		return err
	}
	settings, err := cli.LoadSettings(".")
	if err != nil {
		return err
	}

	cfg := settings.VMConfig()
	if seed, _ := cmd.Flags().GetInt64("seed"); seed != 0 {
		cfg.Seed = seed
	}
	m, err := vm.New(story.Image, cfg)
	if err != nil {
		return reportFault(err)
	}
	m.SetOutput(os.Stdout)

	if path, _ := cmd.Flags().GetString("transcript"); path != "" {
		settings.Transcript = path
	}
	if settings.Transcript != "" {
		f, err := os.OpenFile(settings.Transcript, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open transcript: %w", err)
		}
		defer f.Close()
		m.SetTranscript(f)
	}

	input := os.Stdin
	if path, _ := cmd.Flags().GetString("script"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		input = f
	}
	scanner := bufio.NewScanner(input)
	m.SetInput(vm.LineFunc(func() (string, error) {
		if isTerminal(input) {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return strings.TrimRight(scanner.Text(), "\r"), nil
	}))

	m.SetSaveHandler(func(s *vm.Snapshot) error {
		path, err := settings.SavePath("game")
		if err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return vm.WriteSnapshot(f, s)
	})
	m.SetRestoreHandler(func() (*vm.Snapshot, error) {
		path, err := settings.SavePath("game")
		if err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return vm.ReadSnapshot(f)
	})
	m.SetLocationObserver(func(oldLoc, newLoc uint16) {
		log.Debugf("location %d -> %d", oldLoc, newLoc)
	})

	limit, _ := cmd.Flags().GetInt("limit")
	if limit > 0 {
		for limit > 0 {
			slice := settings.BatchLimit
			if slice > limit {
				slice = limit
			}
			status, err := m.RunBatch(slice)
			if err != nil {
				return reportFault(err)
			}
			if status == vm.Quit {
				return nil
			}
			limit -= slice
		}
		log.Infof("instruction limit reached after %d steps", m.Steps())
		return nil
	}
	if err := m.Run(); err != nil {
		return reportFault(err)
	}
	return nil
}

// reportFault words machine failures for the player: a corrupt story
// is the story author's problem, everything else is ours.
func reportFault(err error) error {
	var f *vm.Fault
	if !errors.As(err, &f) {
		return err
	}
	c := color.New(color.FgRed, color.Bold)
	if f.StoryProblem() {
		c.Fprintln(os.Stderr, "the story file is damaged or not valid Z-code:")
	} else {
		c.Fprintln(os.Stderr, "the interpreter hit a fatal condition:")
	}
	return err
}
