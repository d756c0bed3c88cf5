package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"go.zmach.net/zmach/cli"
	"go.zmach.net/zmach/vm"
)

var infoCmd = &cobra.Command{
	Use:   "info <story.z3>",
	Short: "Show story header fields and verify the checksum",
	Args:  cobra.ExactArgs(1),
	RunE:  showInfo,
}

func showInfo(cmd *cobra.Command, args []string) error {
	story, err := cli.LoadStory(args[0])
	if err != nil {
		return err
	}
	m, err := vm.New(story.Image, vm.Config{})
	if err != nil {
		return reportFault(err)
	}
	h := m.Header()

	fmt.Printf("File:        %s (%d bytes)\n", story.Path, len(story.Image))
	fmt.Printf("Version:     %d\n", h.Version)
	fmt.Printf("Release:     %d\n", h.Release)
	fmt.Printf("Serial:      %s\n", h.Serial)
	fmt.Printf("Initial PC:  0x%05x\n", h.InitialPC)
	fmt.Printf("Static mem:  0x%05x\n", h.StaticMem)
	fmt.Printf("High mem:    0x%05x\n", h.HighMem)
	fmt.Printf("Dictionary:  0x%05x\n", h.Dictionary)
	fmt.Printf("Objects:     0x%05x\n", h.Objects)
	fmt.Printf("Globals:     0x%05x\n", h.Globals)
	fmt.Printf("Abbrevs:     0x%05x\n", h.Abbrevs)
	fmt.Printf("File length: %d\n", h.FileLen)
	fmt.Printf("Checksum:    0x%04x ", h.Checksum)

	ok, err := m.Verify()
	if err != nil {
		return reportFault(err)
	}
	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed, color.Bold)
	if ok {
		good.Println("(verified)")
	} else {
		bad.Println("(MISMATCH)")
	}
	return nil
}
