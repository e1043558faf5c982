package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively, keeping provisioned paths between commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "bone> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			ctx := cmd.Context()
			for {
				if ctx.Err() != nil {
					return nil
				}
				line, err := rl.Readline()
				if err == readline.ErrInterrupt {
					continue
				}
				if err != nil {
					// EOF
					return nil
				}
				if !a.runLine(ctx, line, rl.Stdout(), rl.Stderr()) {
					return nil
				}
			}
		},
	}
}

// runLine executes one shell line against a fresh command tree sharing a.
// It returns false when the shell should exit.
func (a *app) runLine(ctx context.Context, line string, stdout, stderr io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	switch fields[0] {
	case "exit", "quit":
		return false
	case "shell":
		fmt.Fprintln(stderr, "already in a shell")
		return true
	case "cache":
		printJSON(stdout, a.hal.Cache().Snapshot())
		return true
	}

	root := newRootCmd(a)
	root.SetArgs(fields)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.ExecuteContext(ctx)
	return true
}
