package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/girvc/gir/internal/cli"
)

// runCLI calls into the dispatch core and prints whatever it returns,
// mirroring the per-command cobra.RunE shape Nivl-git-go uses.
func runCLI(args []string) error {
	logger := slog.Default()
	out, err := cli.Run(args, logger)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Println(out)
	}
	return nil
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "create an empty repository",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCLI(append([]string{"init"}, args...))
	}
	return cmd
}

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "stage file contents for the next commit",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCLI(append([]string{"add"}, args...))
	}
	return cmd
}

func newCommitCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "record the staged changes",
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		commitArgs := []string{"commit"}
		if message != "" {
			commitArgs = append(commitArgs, "-m", message)
		}
		return runCLI(commitArgs)
	}
	return cmd
}

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "show commit history from HEAD",
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCLI([]string{"log"})
	}
	return cmd
}

func newBranchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch [name]",
		Short: "list or create branches",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCLI(append([]string{"branch"}, args...))
	}
	return cmd
}

func newTagCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "tag [name]",
		Short: "list or create tags",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "annotation message")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		tagArgs := append([]string{"tag"}, args...)
		if message != "" {
			tagArgs = append(tagArgs, "-m", message)
		}
		return runCLI(tagArgs)
	}
	return cmd
}
