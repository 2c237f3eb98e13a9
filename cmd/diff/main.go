package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.chrisrx.dev/x/log"

	"go.chrisrx.dev/reconf/config"
	"go.chrisrx.dev/reconf/protocol"
)

var opts struct {
	Moves bool
	LCS   bool
	Tests bool
	JSON  bool
}

func main() {
	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Print the patch set that turns one document into another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldDoc, err := config.LoadDocument(args[0])
			if err != nil {
				return err
			}
			newDoc, err := config.LoadDocument(args[1])
			if err != nil {
				return err
			}

			var diffOpts []protocol.DiffOption
			if opts.Moves {
				diffOpts = append(diffOpts, protocol.WithMoves())
			}
			if opts.LCS {
				diffOpts = append(diffOpts, protocol.WithLCS())
			}
			if opts.Tests {
				diffOpts = append(diffOpts, protocol.WithTests())
			}
			ps, err := protocol.Diff(oldDoc, newDoc, diffOpts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.JSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ps)
			}
			color.NoColor = !isatty.IsTerminal(os.Stdout.Fd())
			return printPatch(out, ps)
		},
	}

	cmd.Flags().BoolVar(&opts.Moves, "moves", false, "factorize into move and copy operations")
	cmd.Flags().BoolVar(&opts.LCS, "lcs", false, "compare arrays by longest common subsequence")
	cmd.Flags().BoolVar(&opts.Tests, "tests", false, "precede changes with test operations")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the patch set as JSON")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var opColors = map[protocol.Op]*color.Color{
	protocol.OpAdd:     color.New(color.FgGreen),
	protocol.OpRemove:  color.New(color.FgRed),
	protocol.OpReplace: color.New(color.FgYellow),
	protocol.OpMove:    color.New(color.FgCyan),
	protocol.OpCopy:    color.New(color.FgCyan),
	protocol.OpTest:    color.New(color.FgBlue),
}

func printPatch(w io.Writer, ps protocol.PatchSet) error {
	for _, op := range ps {
		c, ok := opColors[op.Op]
		if !ok {
			c = color.New(color.Reset)
		}
		line := c.Sprintf("%-7s", op.Op) + " " + pointer(op.Path)
		switch op.Op {
		case protocol.OpMove, protocol.OpCopy:
			line += " <- " + pointer(op.From)
		case protocol.OpAdd, protocol.OpReplace, protocol.OpTest:
			v, err := json.Marshal(op.Value)
			if err != nil {
				return err
			}
			line += " " + string(v)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func pointer(p string) string {
	if p == "" {
		return `""`
	}
	return p
}
