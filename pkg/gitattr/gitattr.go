// Package gitattr manages the two reserved lines this tool owns in the
// repository's attribute file, and parses user-owned filter-bound glob
// patterns out of it for the Reference Sweep (§4.6, §6).
package gitattr

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/google/shlex"
)

// FilterToken is the attribute token that binds a path glob to this tool's
// filter driver.
const FilterToken = "filter=git_fastcdc"

// ChunkLine and SelfLine are the two reserved, anchored lines this tool
// installs into the attribute file.
const (
	ChunkLine = "/.cdc/**/*.cdc binary filter=git_fastcdc"
	SelfLine  = "/.gitattributes text -binary -filter"
)

// EnsureInstalled returns text with whichever of ChunkLine and SelfLine is
// missing appended, leaving every other line untouched and in place. It is
// idempotent: calling it twice on its own output is a no-op (§8 "Idempotent
// install").
func EnsureInstalled(text string) string {
	lines := splitLines(text)
	has := map[string]bool{}
	for _, l := range lines {
		has[strings.TrimSpace(l)] = true
	}

	out := strings.Join(lines, "\n")
	if len(lines) > 0 && out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	for _, reserved := range []string{ChunkLine, SelfLine} {
		if !has[reserved] {
			out += reserved + "\n"
		}
	}
	return out
}

// StripInstalled removes ChunkLine and SelfLine from text, leaving every
// other line untouched and in the same order.
func StripInstalled(text string) string {
	var kept []string
	for _, l := range splitLines(text) {
		trimmed := strings.TrimSpace(l)
		if trimmed == ChunkLine || trimmed == SelfLine {
			continue
		}
		kept = append(kept, l)
	}
	out := strings.Join(kept, "\n")
	if out != "" {
		out += "\n"
	}
	return out
}

// ParseFilterBoundGlobs extracts the first token of every line that carries
// FilterToken and is not the tool-owned ChunkLine, per §4.6 step 2.
// Unparseable lines (shlex tokenization failure, or no tokens) are skipped
// silently, as §7 requires.
func ParseFilterBoundGlobs(text string) []string {
	var globs []string
	for _, line := range splitLines(text) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == ChunkLine {
			continue
		}
		if !strings.Contains(trimmed, FilterToken) {
			continue
		}
		tokens, err := shlex.Split(trimmed)
		if err != nil || len(tokens) == 0 {
			continue
		}
		globs = append(globs, tokens[0])
	}
	return globs
}

// MatchGlob reports whether path matches pattern using fnmatch-style
// wildcard semantics (the original tool's fnmatch.fnmatch): '*' matches any
// run of characters including path separators, '?' matches exactly one
// character, matched against the whole string.
func MatchGlob(pattern, path string) bool {
	re, err := compileFnmatch(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(path)
}

func compileFnmatch(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func splitLines(text string) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
