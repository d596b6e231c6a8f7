package main

import "github.com/spf13/cobra"

func newShowRefCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show-ref",
		Short: "list references and the ids they point at",
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCLI([]string{"show-ref"})
	}
	return cmd
}

func newCatFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat-file <-t|-s|-p> <id>",
		Short: "print object type, size, or content",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCLI(append([]string{"cat-file"}, args...))
	}
	return cmd
}

func newLsTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls-tree <id>",
		Short: "list a tree object's entries",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCLI(append([]string{"ls-tree"}, args...))
	}
	return cmd
}

func newLsFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls-files",
		Short: "list the files tracked by HEAD's commit",
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCLI([]string{"ls-files"})
	}
	return cmd
}

func newHashObjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-object <path>",
		Short: "compute and store the blob id of a file",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCLI(append([]string{"hash-object"}, args...))
	}
	return cmd
}
