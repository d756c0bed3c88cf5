package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"go.zmach.net/zmach/cli"
	"go.zmach.net/zmach/disasm"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm [flags] <story.z3>",
	Short: "Disassemble story instructions",
	Args:  cobra.ExactArgs(1),
	RunE:  disasmStory,
}

func init() {
	disasmCmd.Flags().String("addr", "", "start address in hex (default: initial pc)")
	disasmCmd.Flags().Int("count", 32, "number of instructions to list")
}

func disasmStory(cmd *cobra.Command, args []string) error {
	story, err := cli.LoadStory(args[0])
	if err != nil {
		return err
	}
	d, err := disasm.New(story.Image)
	if err != nil {
		return err
	}
	addr := d.Entry()
	if s, _ := cmd.Flags().GetString("addr"); s != "" {
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return fmt.Errorf("bad address %q: %w", s, err)
		}
		addr = uint32(v)
	}
	count, _ := cmd.Flags().GetInt("count")
	return d.Listing(os.Stdout, addr, count)
}
