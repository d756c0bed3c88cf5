package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.zmach.net/zmach/zbuild"
)

var composeCmd = &cobra.Command{
	Use:   "compose [flags]",
	Short: "Write a tiny built-in demonstration story",
	Long:  `Compose a minimal playable story file: it greets the player, reads commands, and quits on "quit". Handy for trying the interpreter without a real game, and as a smoke test for the whole pipeline.`,
	Args:  cobra.NoArgs,
	RunE:  composeDemo,
}

func init() {
	composeCmd.Flags().StringP("out", "o", "demo.z3", "output story file")
}

// Buffer locations for the demo story. The tail of the global table is
// never read as globals, so it doubles as scratch memory; the first
// byte of each buffer is its capacity, planted via the global words.
const (
	demoText  = 0x100 + 2*200 // capacity 40
	demoParse = 0x100 + 2*216 // capacity 5 tokens
)

func composeDemo(cmd *cobra.Command, args []string) error {
	b := zbuild.New()
	b.Globals[200] = 0x2800
	b.Globals[216] = 0x0500
	if err := b.AddWord("quit"); err != nil {
		return err
	}

	banner := zbuild.Join(
		zbuild.Short0OP(0x2), zbuild.ZText("A tiny story. Type quit to leave.\n"),
	)
	// Loop body: read a command, fetch the first token's dictionary
	// address, and quit once it resolves to a known word.
	read := zbuild.Join(
		zbuild.Var(0x04, zbuild.Large(demoText), zbuild.Large(demoParse)),
		zbuild.Var2OP(0x0F, zbuild.Large(demoParse), zbuild.Small(1)), zbuild.Store(0),
	)
	goodbye := zbuild.Join(
		zbuild.Short0OP(0x2), zbuild.ZText("Goodbye.\n"),
		zbuild.Short0OP(0xA),
	)
	unknown := zbuild.Join(
		zbuild.Short0OP(0x2), zbuild.ZText("I only understand quit.\n"),
	)
	// je sp 0 branches over the goodbye leg to the unknown leg.
	check := zbuild.Join(
		zbuild.Long2OP(0x01, zbuild.Variable(0), zbuild.Small(0)),
		zbuild.Branch(true, int16(len(goodbye))+2),
	)
	// Jump back to the read at the top of the loop. The operand is a
	// signed word; target = pc after the jump + offset - 2.
	back := len(read) + len(check) + len(goodbye) + len(unknown) + 3
	loop := zbuild.Join(
		read, check, goodbye, unknown,
		zbuild.Short1OP(0x0C, zbuild.Large(uint16(-(back-2)))),
	)
	if err := b.SetMain(zbuild.Join(banner, loop)); err != nil {
		return err
	}

	img, err := b.Build()
	if err != nil {
		return fmt.Errorf("compose story: %w", err)
	}
	out, _ := cmd.Flags().GetString("out")
	if err := os.WriteFile(out, img, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", out, len(img))
	return nil
}
