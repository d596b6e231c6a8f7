// Package cli is the narrow core entry point the command-line front end
// calls into: a single Run function that dispatches on the command name
// through one switch, per Design Notes §9's "command polymorphism" —
// tagged-variant dispatch, not a dynamic-dispatch Command interface.
// Argument parsing lives in cmd/gir. init, add (by explicit path; there
// is no working-tree walk), commit, log and ls-files go through
// internal/workdir; the other implemented verbs operate directly on C1/C4.
package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/girvc/gir/internal/objstore"
	"github.com/girvc/gir/internal/refstore"
	"github.com/girvc/gir/internal/workdir"
)

// Run dispatches args[0] (the command name) to its implementation,
// returning the command's stdout text or an error message — mirroring
// the original's `ejecutar() -> Result<String, String>` per-command
// capability collapsed into one function.
func Run(args []string, logger *slog.Logger) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("no command given")
	}
	name, rest := args[0], args[1:]
	logger.Debug("dispatching command", "command", name, "args", rest)

	switch name {
	case "init":
		return runInit(rest)
	case "add":
		return runAdd(rest)
	case "commit":
		return runCommit(rest)
	case "log":
		return runLog(rest)
	case "branch":
		return runBranch(rest)
	case "tag":
		return runTag(rest)
	case "show-ref":
		return runShowRef(rest)
	case "cat-file":
		return runCatFile(rest)
	case "ls-tree":
		return runLsTree(rest)
	case "ls-files":
		return runLsFiles(rest)
	case "hash-object":
		return runHashObject(rest)
	case "status", "checkout", "merge", "fetch", "push", "pull", "clone", "remote", "rebase", "gui":
		return "", fmt.Errorf("%s: not implemented in this build", name)
	default:
		return "", fmt.Errorf("unknown command %q", name)
	}
}

func runInit(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if _, err := workdir.Init(dir); err != nil {
		return "", err
	}
	return fmt.Sprintf("Initialized empty gir repository in %s/.gir", dir), nil
}

func runAdd(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("add: at least one path is required")
	}
	repo, err := workdir.Open(".")
	if err != nil {
		return "", err
	}
	if err := repo.Add(args...); err != nil {
		return "", err
	}
	return "", nil
}

func runCommit(args []string) (string, error) {
	var message string
	for i := 0; i < len(args); i++ {
		if args[i] == "-m" && i+1 < len(args) {
			message = args[i+1]
			i++
		}
	}
	if message == "" {
		return "", fmt.Errorf("commit: -m <message> is required")
	}
	repo, err := workdir.Open(".")
	if err != nil {
		return "", err
	}
	id, err := repo.Commit(message, "gir")
	if err != nil {
		return "", err
	}
	return string(id), nil
}

func runLog(args []string) (string, error) {
	repo, err := workdir.Open(".")
	if err != nil {
		return "", err
	}
	return repo.Log()
}

func runBranch(args []string) (string, error) {
	refs := refstore.Open(".gir")
	if len(args) == 0 {
		branches, err := refs.ListBranches()
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for name := range branches {
			fmt.Fprintln(&b, strings.TrimPrefix(name, "refs/heads/"))
		}
		return b.String(), nil
	}

	name := args[0]
	head, err := refs.ResolveHEAD()
	if err != nil {
		return "", err
	}
	if err := refs.UpdateRef("refs/heads/"+name, head, nil); err != nil {
		return "", err
	}
	return "", nil
}

func runTag(args []string) (string, error) {
	if len(args) == 0 {
		refs := refstore.Open(".gir")
		tags, err := refs.ListTags()
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for name := range tags {
			fmt.Fprintln(&b, strings.TrimPrefix(name, "refs/tags/"))
		}
		return b.String(), nil
	}

	name := args[0]
	refs := refstore.Open(".gir")
	objects, err := objstore.Open(".gir/objects")
	if err != nil {
		return "", err
	}
	head, err := refs.ResolveHEAD()
	if err != nil {
		return "", err
	}

	if len(args) >= 3 && args[1] == "-m" {
		tagID, err := objects.HashTag(objstore.TagData{
			Object: head, Type: objstore.KindCommit, Tag: name, Tagger: "gir", Message: args[2],
		})
		if err != nil {
			return "", err
		}
		return "", refs.UpdateRef("refs/tags/"+name, tagID, nil)
	}
	return "", refs.UpdateRef("refs/tags/"+name, head, nil)
}

func runShowRef(args []string) (string, error) {
	refs := refstore.Open(".gir")
	var b strings.Builder
	for _, prefix := range []string{"refs/heads/", "refs/tags/"} {
		all, err := refs.ListRefs(prefix)
		if err != nil {
			return "", err
		}
		names := make([]string, 0, len(all))
		for name := range all {
			names = append(names, name)
		}
		for _, name := range names {
			fmt.Fprintf(&b, "%s %s\n", all[name], name)
		}
	}
	return b.String(), nil
}

func runCatFile(args []string) (string, error) {
	if len(args) < 2 {
		return "", fmt.Errorf("cat-file: usage cat-file <-t|-s|-p> <id>")
	}
	flag, id := args[0], objstore.ID(args[1])
	objects, err := objstore.Open(".gir/objects")
	if err != nil {
		return "", err
	}
	kind, payload, err := objects.Read(id)
	if err != nil {
		return "", err
	}
	switch flag {
	case "-t":
		return string(kind), nil
	case "-s":
		return fmt.Sprintf("%d", len(payload)), nil
	case "-p":
		return string(payload), nil
	default:
		return "", fmt.Errorf("cat-file: unknown flag %q", flag)
	}
}

func runLsTree(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("ls-tree: a tree id is required")
	}
	objects, err := objstore.Open(".gir/objects")
	if err != nil {
		return "", err
	}
	_, payload, err := objects.Read(objstore.ID(args[0]))
	if err != nil {
		return "", err
	}
	entries, err := objstore.DecodeTree(payload)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s\n", e.Mode, e.Name)
	}
	return b.String(), nil
}

func runLsFiles(args []string) (string, error) {
	repo, err := workdir.Open(".")
	if err != nil {
		return "", err
	}
	head, err := repo.Refs.ResolveHEAD()
	if err != nil {
		return "", nil
	}
	_, payload, err := repo.Objects.Read(head)
	if err != nil {
		return "", err
	}
	commit, err := objstore.DecodeCommit(payload)
	if err != nil {
		return "", err
	}
	_, treePayload, err := repo.Objects.Read(commit.Tree)
	if err != nil {
		return "", err
	}
	entries, err := objstore.DecodeTree(treePayload)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintln(&b, e.Name)
	}
	return b.String(), nil
}

func runHashObject(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("hash-object: a path is required")
	}
	objects, err := objstore.Open(".gir/objects")
	if err != nil {
		return "", err
	}
	id, err := objects.HashFile(args[0])
	if err != nil {
		return "", err
	}
	return string(id), nil
}
