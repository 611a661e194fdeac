package history

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"
)

// MemoryRepository is a linear, in-memory Repository. It is handy for
// replaying histories that were not read from git, and in tests.
type MemoryRepository struct {
	commits []Commit // oldest first
	trees   map[string]map[string][]byte
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{trees: make(map[string]map[string][]byte)}
}

// Commit records a commit on top of the previous one. files maps a path to
// its new content; deleted lists paths removed by the commit.
func (r *MemoryRepository) Commit(id, author string, date time.Time, message string, files map[string]string, deleted ...string) Commit {
	tree := make(map[string][]byte)
	c := Commit{ID: id, Author: author, Date: date, Message: message}
	if n := len(r.commits); n > 0 {
		parent := r.commits[n-1].ID
		c.Parents = []string{parent}
		for p, content := range r.trees[parent] {
			tree[p] = content
		}
	}

	for p, content := range files {
		tree[p] = []byte(content)
		c.Files = append(c.Files, p)
	}
	for _, p := range deleted {
		delete(tree, p)
		c.Files = append(c.Files, p)
	}
	sort.Strings(c.Files)

	r.trees[id] = tree
	r.commits = append(r.commits, c)
	return c
}

// Commits returns the log newest-first.
func (r *MemoryRepository) Commits(ctx context.Context) ([]Commit, error) {
	out := make([]Commit, 0, len(r.commits))
	for i := len(r.commits) - 1; i >= 0; i-- {
		out = append(out, r.commits[i])
	}
	return out, nil
}

// Changes compares the tree of c with the tree of its parent.
func (r *MemoryRepository) Changes(ctx context.Context, c Commit) ([]Change, error) {
	tree, ok := r.trees[c.ID]
	if !ok {
		return nil, fmt.Errorf("unknown revision %s", c.ID)
	}
	parent := r.trees[c.Parent()]

	var out []Change
	for p, content := range tree {
		old, existed := parent[p]
		switch {
		case !existed:
			out = append(out, Change{Type: Added, Path: p})
		case !bytes.Equal(old, content):
			out = append(out, Change{Type: Modified, Path: p})
		}
	}
	for p := range parent {
		if _, ok := tree[p]; !ok {
			out = append(out, Change{Type: Deleted, Path: p})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// FileAt returns the content of path at rev.
func (r *MemoryRepository) FileAt(ctx context.Context, rev, path string) ([]byte, error) {
	tree, ok := r.trees[rev]
	if !ok {
		return nil, fmt.Errorf("unknown revision %s", rev)
	}
	content, ok := tree[path]
	if !ok {
		return nil, fmt.Errorf("%s at %s: %w", path, rev, ErrNotFound)
	}
	return content, nil
}
