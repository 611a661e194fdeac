// Package vcs reads commit history from a git working copy by running the
// git binary.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/phobologic/repograph/internal/history"
	"github.com/phobologic/repograph/internal/repograph"
)

// EmptyTree is the id of git's empty tree, used as the parent of root
// commits.
const EmptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

const (
	recordSep = "\x1e"
	fieldSep  = "\x1f"
)

// ErrNotRepository is returned by Open for a directory outside any git
// working copy.
var ErrNotRepository = errors.New("not a git repository")

// AccessError reports a git invocation that failed. Callers log it and skip
// the affected file or commit.
type AccessError struct {
	Op     string
	Args   []string
	Stderr string
	Err    error
}

func (e *AccessError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("git %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("git %s: %v: %s", e.Op, e.Err, msg)
}

func (e *AccessError) Unwrap() error { return e.Err }

// Git is a history.Repository backed by a git working copy.
type Git struct {
	root    string
	Timeout time.Duration // per command, zero means none
}

var _ history.Repository = (*Git)(nil)

// Open checks that root exists and belongs to a git working copy.
func Open(ctx context.Context, root string) (*Git, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", repograph.ErrRootNotFound, root)
		}
		return nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}

	g := &Git{root: abs, Timeout: 30 * time.Second}
	if _, err := g.run(ctx, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotRepository, root, err)
	}
	return g, nil
}

// Root returns the absolute path of the working copy.
func (g *Git) Root() string { return g.root }

func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	full := append([]string{"-c", "core.quotepath=off"}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Dir = g.root
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &AccessError{Op: args[0], Args: args, Stderr: stderr.String(), Err: err}
	}
	return out, nil
}

// Commits returns the log reachable from HEAD, newest-first. An empty
// repository has no commits. Renames list both paths, and merge commits list
// the files changed against their first parent.
func (g *Git) Commits(ctx context.Context) ([]history.Commit, error) {
	if _, err := g.run(ctx, "rev-parse", "--verify", "-q", "HEAD"); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}

	format := "--format=" + recordSep + "%H" + fieldSep + "%P" + fieldSep + "%an" + fieldSep + "%cI" + fieldSep + "%B" + fieldSep
	out, err := g.run(ctx, "log", format, "--name-only", "--no-renames", "HEAD")
	if err != nil {
		return nil, err
	}
	commits, err := parseLog(string(out))
	if err != nil {
		return nil, err
	}

	// git log prints no file list for merges.
	for i := range commits {
		if len(commits[i].Parents) < 2 {
			continue
		}
		files, err := g.mergeFiles(ctx, commits[i])
		if err != nil {
			return nil, err
		}
		commits[i].Files = files
	}
	return commits, nil
}

func (g *Git) mergeFiles(ctx context.Context, c history.Commit) ([]string, error) {
	out, err := g.run(ctx, "diff-tree", "-r", "--name-only", "--no-renames", c.Parent(), c.ID)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func parseLog(out string) ([]history.Commit, error) {
	var commits []history.Commit
	for _, rec := range strings.Split(out, recordSep) {
		if strings.TrimSpace(rec) == "" {
			continue
		}
		fields := strings.SplitN(rec, fieldSep, 6)
		if len(fields) != 6 {
			return nil, fmt.Errorf("malformed log record %q", rec)
		}
		date, err := time.Parse(time.RFC3339, fields[3])
		if err != nil {
			return nil, fmt.Errorf("parsing commit date %q: %w", fields[3], err)
		}
		c := history.Commit{
			ID:      fields[0],
			Parents: strings.Fields(fields[1]),
			Author:  fields[2],
			Date:    date,
			Message: strings.TrimSpace(fields[4]),
		}
		for _, line := range strings.Split(fields[5], "\n") {
			if line = strings.TrimSpace(line); line != "" {
				c.Files = append(c.Files, line)
			}
		}
		commits = append(commits, c)
	}
	return commits, nil
}

// Changes lists the files changed between the first parent of c (or the
// empty tree) and c.
func (g *Git) Changes(ctx context.Context, c history.Commit) ([]history.Change, error) {
	parent := c.Parent()
	if parent == "" {
		parent = EmptyTree
	}
	out, err := g.run(ctx, "diff-tree", "-r", "--name-status", parent, c.ID)
	if err != nil {
		return nil, err
	}
	return parseNameStatus(string(out)), nil
}

func parseNameStatus(out string) []history.Change {
	var changes []history.Change
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 || parts[0] == "" {
			continue
		}
		ch := history.Change{Type: history.ChangeType(parts[0][:1]), Path: parts[len(parts)-1]}
		if len(parts) == 3 {
			ch.OldPath = parts[1]
		}
		changes = append(changes, ch)
	}
	return changes
}

// FileAt returns the content of path at rev.
func (g *Git) FileAt(ctx context.Context, rev, path string) ([]byte, error) {
	out, err := g.run(ctx, "show", rev+":"+path)
	if err != nil {
		var ae *AccessError
		if errors.As(err, &ae) && isMissingPath(ae.Stderr) {
			return nil, fmt.Errorf("%s at %s: %w", path, rev, history.ErrNotFound)
		}
		return nil, err
	}
	return out, nil
}

func isMissingPath(stderr string) bool {
	return strings.Contains(stderr, "does not exist in") || strings.Contains(stderr, "exists on disk, but not in")
}
