// Command gir is the server and CLI front end: argument parsing lives
// here via cobra, an external collaborator per spec.md §1; the actual
// command dispatch is internal/cli.Run's single switch.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gir",
		Short:         "a self-hosted, git-wire-compatible version control server",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// server
	cmd.AddCommand(newServeCmd())

	// porcelain
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newCommitCmd())
	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newBranchCmd())
	cmd.AddCommand(newTagCmd())

	// plumbing
	cmd.AddCommand(newShowRefCmd())
	cmd.AddCommand(newCatFileCmd())
	cmd.AddCommand(newLsTreeCmd())
	cmd.AddCommand(newLsFilesCmd())
	cmd.AddCommand(newHashObjectCmd())

	return cmd
}
