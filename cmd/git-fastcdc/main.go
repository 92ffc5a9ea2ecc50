// Package main implements the git-fastcdc CLI as specified in §6:
// install, remove, process, and prune.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ganwell/git-fastcdc-go/pkg/chunkstore"
	"github.com/ganwell/git-fastcdc-go/pkg/filter"
	"github.com/ganwell/git-fastcdc-go/pkg/gitattr"
	"github.com/ganwell/git-fastcdc-go/pkg/gitgw"
	"github.com/ganwell/git-fastcdc-go/pkg/packet"
	"github.com/ganwell/git-fastcdc-go/pkg/sweep"
)

// Build-time variables set by ldflags.
var (
	version    = "dev"
	buildTime  = "unknown"
	commitHash = "unknown"
)

const (
	configProcessKey  = "filter.git_fastcdc.process"
	configRequiredKey = "filter.git_fastcdc.required"
	configOnDiskKey   = "fastcdc.ondisk"
	attrFileName      = ".gitattributes"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	gw := gitgw.NewCLIGateway()
	root, err := gw.RepoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "git-fastcdc: %v\n", err)
		os.Exit(1)
	}
	if err := os.Chdir(root); err != nil {
		fmt.Fprintf(os.Stderr, "git-fastcdc: chdir to repo root %s: %v\n", root, err)
		os.Exit(1)
	}

	var runErr error
	switch os.Args[1] {
	case "version", "--version", "-v":
		fmt.Printf("git-fastcdc %s (%s, built %s)\n", version, commitHash, buildTime)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	case "install":
		runErr = installCommand(gw, root)
	case "remove":
		runErr = removeCommand(gw, root)
	case "process":
		runErr = processCommand(gw, root)
	case "prune":
		runErr = pruneCommand(gw, root)
	default:
		fmt.Fprintf(os.Stderr, "git-fastcdc: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "git-fastcdc: %v\n", runErr)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: git-fastcdc <install|remove|process|prune|version>")
}

// installCommand implements §6's "install": idempotently remove any prior
// configuration, set the process/required config keys, and ensure the
// reserved attribute lines are present.
func installCommand(gw gitgw.Gateway, root string) error {
	if err := removeCommand(gw, root); err != nil {
		return fmt.Errorf("install: clean prior configuration: %w", err)
	}

	invocation := selfInvocation()
	if err := gw.WriteConfig(configProcessKey, invocation); err != nil {
		return fmt.Errorf("install: set %s: %w", configProcessKey, err)
	}
	if err := gw.WriteConfig(configRequiredKey, "true"); err != nil {
		return fmt.Errorf("install: set %s: %w", configRequiredKey, err)
	}

	return editAttributeFile(root, gitattr.EnsureInstalled)
}

// removeCommand implements §6's "remove": unset the two config keys
// (ignoring unset-failures, per Gateway.UnsetConfig's contract) and strip
// the reserved attribute lines.
func removeCommand(gw gitgw.Gateway, root string) error {
	if err := gw.UnsetConfig(configProcessKey); err != nil {
		return fmt.Errorf("remove: unset %s: %w", configProcessKey, err)
	}
	if err := gw.UnsetConfig(configRequiredKey); err != nil {
		return fmt.Errorf("remove: unset %s: %w", configRequiredKey, err)
	}

	return editAttributeFile(root, gitattr.StripInstalled)
}

func editAttributeFile(root string, edit func(string) string) error {
	path := root + string(os.PathSeparator) + attrFileName
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", attrFileName, err)
	}
	updated := edit(string(existing))
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", attrFileName, err)
	}
	return nil
}

// processCommand implements §6's "process": run the Filter Session on
// stdin/stdout. fastcdc.ondisk selects on-disk clean mode; absence defaults
// to buffered, per §7.
func processCommand(gw gitgw.Gateway, root string) error {
	onDisk := false
	if v, ok := gw.ReadConfig(configOnDiskKey); ok {
		onDisk = string(v) == "true\n" || string(v) == "true"
	}

	store := chunkstore.New(root, chunkstore.DefaultRoot)
	ch := packet.NewChannel(os.Stdin, os.Stdout)
	log := logrus.New()
	sess := filter.NewSession(ch, gw, store, filter.Config{OnDisk: onDisk}, log)
	return sess.Run()
}

// pruneCommand implements §6's "prune": run the Reference Sweep.
func pruneCommand(gw gitgw.Gateway, root string) error {
	store := chunkstore.New(root, chunkstore.DefaultRoot)
	sweeper := sweep.New(gw, store, attrFileName, func() (string, error) {
		data, err := os.ReadFile(root + string(os.PathSeparator) + attrFileName)
		if err != nil {
			if os.IsNotExist(err) {
				return "", nil
			}
			return "", fmt.Errorf("read %s: %w", attrFileName, err)
		}
		return string(data), nil
	})
	deleted, err := sweeper.Prune(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("git-fastcdc: prune deleted %d unreferenced chunk file(s)\n", deleted)
	return nil
}

// selfInvocation returns the invocation string the host DVCS should use to
// re-enter this tool's process subcommand, resolving our own executable
// path so `install` works regardless of PATH at filter-invocation time.
func selfInvocation() string {
	exe, err := os.Executable()
	if err != nil {
		exe = "git-fastcdc"
	}
	return fmt.Sprintf("%s process", exe)
}
