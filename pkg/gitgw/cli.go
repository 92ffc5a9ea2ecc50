package gitgw

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// CLIGateway implements Gateway by invoking the real git binary, one
// subprocess per call, exactly as the original ganwell/git-fastcdc does
// (git hash-object, git cat-file, git rev-parse, git ls-files, git show,
// git config, git add).
type CLIGateway struct {
	// Binary is the git executable to invoke; defaults to "git" when empty.
	Binary string
}

// NewCLIGateway returns a CLIGateway that invokes the system git binary.
func NewCLIGateway() *CLIGateway {
	return &CLIGateway{Binary: "git"}
}

func (g *CLIGateway) bin() string {
	if g.Binary == "" {
		return "git"
	}
	return g.Binary
}

func (g *CLIGateway) run(stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.Command(g.bin(), args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// StoreBytes implements Gateway.
func (g *CLIGateway) StoreBytes(payload []byte) (string, error) {
	out, err := g.run(payload, "hash-object", "-w", "-t", "blob", "--stdin")
	if err != nil {
		return "", fmt.Errorf("store bytes: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// FetchBytes implements Gateway.
func (g *CLIGateway) FetchBytes(hash string) ([]byte, error) {
	out, err := g.run(nil, "cat-file", "blob", hash)
	if err != nil {
		return nil, fmt.Errorf("fetch bytes %s: %w", hash, err)
	}
	return out, nil
}

// ListTrackedPaths implements Gateway.
func (g *CLIGateway) ListTrackedPaths() ([]string, error) {
	out, err := g.run(nil, "ls-files")
	if err != nil {
		return nil, fmt.Errorf("list tracked paths: %w", err)
	}
	return splitNonEmptyLines(string(out)), nil
}

// ShowStagedBlob implements Gateway.
func (g *CLIGateway) ShowStagedBlob(path string) ([]byte, error) {
	out, err := g.run(nil, "show", ":"+path)
	if err != nil {
		return nil, fmt.Errorf("show staged blob %s: %w", path, err)
	}
	return out, nil
}

// StagePaths implements Gateway.
func (g *CLIGateway) StagePaths(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if _, err := g.run(nil, append([]string{"add"}, paths...)...); err != nil {
		return fmt.Errorf("stage paths %v: %w", paths, err)
	}
	return nil
}

// ReadConfig implements Gateway. A non-zero exit (key unset) is reported as
// (nil, false), never as an error.
func (g *CLIGateway) ReadConfig(key string) ([]byte, bool) {
	cmd := exec.Command(g.bin(), "config", "--local", "--get", key)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, false
	}
	return stdout.Bytes(), true
}

// WriteConfig implements Gateway.
func (g *CLIGateway) WriteConfig(key, value string) error {
	if _, err := g.run(nil, "config", "--local", key, value); err != nil {
		return fmt.Errorf("write config %s: %w", key, err)
	}
	return nil
}

// UnsetConfig implements Gateway. A non-zero exit (key already unset) is not
// an error.
func (g *CLIGateway) UnsetConfig(key string) error {
	cmd := exec.Command(g.bin(), "config", "--local", "--unset", key)
	_ = cmd.Run()
	return nil
}

// RepoRoot implements Gateway.
func (g *CLIGateway) RepoRoot() (string, error) {
	out, err := g.run(nil, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("repo root: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func splitNonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
