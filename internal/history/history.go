// Package history builds the commit graph: which commits touched which
// files, and which classes and methods those files contain.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Repository.FileAt when the file does not exist
// at the requested revision.
var ErrNotFound = errors.New("file not found at revision")

// Commit is one entry of the version-control log.
type Commit struct {
	ID      string
	Author  string
	Date    time.Time
	Message string
	Parents []string
	// Files are the paths changed by the commit, slash-separated.
	Files []string
}

// Parent returns the first parent, or "" for a root commit.
func (c Commit) Parent() string {
	if len(c.Parents) == 0 {
		return ""
	}
	return c.Parents[0]
}

// ChangeType classifies a file change between a commit and its parent.
type ChangeType string

const (
	Added       ChangeType = "A"
	Modified    ChangeType = "M"
	Deleted     ChangeType = "D"
	Renamed     ChangeType = "R"
	Copied      ChangeType = "C"
	TypeChanged ChangeType = "T"
)

// Change is one changed file. OldPath is set for renames and copies.
type Change struct {
	Type    ChangeType
	Path    string
	OldPath string
}

// Repository is the version-control collaborator.
type Repository interface {
	// Commits returns the log newest-first.
	Commits(ctx context.Context) ([]Commit, error)
	// Changes lists the files changed between c's first parent (or the
	// empty tree) and c.
	Changes(ctx context.Context, c Commit) ([]Change, error)
	// FileAt returns the content of path at rev, or an error wrapping
	// ErrNotFound when the file is absent.
	FileAt(ctx context.Context, rev, path string) ([]byte, error)
}
