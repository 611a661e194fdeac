// Package diffhist attributes per-commit source changes to functions by
// scanning unified diffs for definition lines.
package diffhist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"

	"github.com/phobologic/repograph/internal/history"
	"github.com/phobologic/repograph/internal/lang"
	"github.com/phobologic/repograph/internal/logging"
	"github.com/phobologic/repograph/internal/metrics"
)

// Modification is the change text of one function in one commit.
type Modification struct {
	CommitID string    `json:"commit_id"`
	Date     time.Time `json:"date"`
	Changes  string    `json:"changes"`
}

// Evolution maps a function name to its modifications, newest commit
// first.
type Evolution map[string][]Modification

// Chronological returns the modifications of name oldest first.
func (e Evolution) Chronological(name string) []Modification {
	mods := e[name]
	out := make([]Modification, len(mods))
	for i, m := range mods {
		out[len(mods)-1-i] = m
	}
	return out
}

// Functions lists the tracked names, most modified first, ties by name.
func (e Evolution) Functions() []string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(e[names[i]]) != len(e[names[j]]) {
			return len(e[names[i]]) > len(e[names[j]])
		}
		return names[i] < names[j]
	})
	return names
}

// FunctionChange is the accumulated diff text attributed to one function.
type FunctionChange struct {
	Name    string
	Changes string
}

// Options configures a Tracker.
type Options struct {
	// Language is the tracked language. Nil selects the default.
	Language *lang.Language
	// MaxCommits limits tracking to the newest commits. Zero means all.
	MaxCommits int
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Tracker computes function evolutions from a repository's history.
type Tracker struct {
	lang       *lang.Language
	maxCommits int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewTracker creates a tracker.
func NewTracker(opts Options) *Tracker {
	l := opts.Language
	if l == nil {
		l = lang.Default()
	}
	return &Tracker{
		lang:       l,
		maxCommits: opts.MaxCommits,
		logger:     logging.OrDiscard(opts.Logger),
		metrics:    opts.Metrics,
	}
}

// Track walks the commits of repo newest-first and records, for every
// added or modified file of the tracked language, the diff lines
// attributed to each function. A file whose content cannot be read is
// skipped; the rest of its commit is still processed.
func (t *Tracker) Track(ctx context.Context, repo history.Repository) (Evolution, error) {
	commits, err := repo.Commits(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	if t.maxCommits > 0 && len(commits) > t.maxCommits {
		commits = commits[:t.maxCommits]
	}

	evo := make(Evolution)
	for _, c := range commits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changes, err := repo.Changes(ctx, c)
		if err != nil {
			t.logger.Warn("listing commit changes", slog.String("commit", c.ID), slog.Any("error", err))
			t.metrics.HistoryFailure("diff-tree")
			continue
		}

		var order []string
		perCommit := make(map[string]*strings.Builder)
		for _, ch := range changes {
			if ch.Type != history.Added && ch.Type != history.Modified {
				continue
			}
			if l := lang.ForPath(ch.Path); l == nil || l.Name != t.lang.Name {
				continue
			}
			fcs, err := t.fileChanges(ctx, repo, c, ch)
			if err != nil {
				t.logger.Warn("skipping file history", slog.String("commit", c.ID), slog.String("path", ch.Path), slog.Any("error", err))
				t.metrics.HistoryFailure("show")
				continue
			}
			for _, fc := range fcs {
				b, ok := perCommit[fc.Name]
				if !ok {
					b = &strings.Builder{}
					perCommit[fc.Name] = b
					order = append(order, fc.Name)
				}
				b.WriteString(fc.Changes)
			}
		}

		for _, name := range order {
			evo[name] = append(evo[name], Modification{CommitID: c.ID, Date: c.Date, Changes: perCommit[name].String()})
			t.metrics.FunctionModified()
		}
	}
	return evo, nil
}

func (t *Tracker) fileChanges(ctx context.Context, repo history.Repository, c history.Commit, ch history.Change) ([]FunctionChange, error) {
	var before []byte
	if parent := c.Parent(); parent != "" && ch.Type == history.Modified {
		old, err := readFile(ctx, repo, parent, ch.Path)
		if err != nil {
			return nil, err
		}
		before = old
	}
	after, err := readFile(ctx, repo, c.ID, ch.Path)
	if err != nil {
		return nil, err
	}

	unified, err := UnifiedDiff(ch.Path, string(before), string(after))
	if err != nil {
		return nil, err
	}
	return ScanDiff(t.lang, unified)
}

// UnifiedDiff returns the unified diff between two versions of a file with
// three lines of context. Identical versions yield "".
func UnifiedDiff(path, before, after string) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(ud)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := difflib.SplitLines(s)
	if strings.HasSuffix(s, "\n") {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// ScanDiff attributes the added and removed lines of a unified diff to
// functions. A hunk header forgets the current function; a changed line
// holding the definition keyword makes the name after it current; every
// changed line seen while a function is current is appended to it with
// its prefix. Results are in first-seen order.
func ScanDiff(l *lang.Language, unified string) ([]FunctionChange, error) {
	if strings.TrimSpace(unified) == "" {
		return nil, nil
	}
	if l == nil {
		l = lang.Default()
	}
	fd, err := diff.ParseFileDiff([]byte(unified))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	var order []string
	acc := make(map[string]*strings.Builder)
	for _, h := range fd.Hunks {
		current := ""
		for _, line := range bytes.Split(h.Body, []byte("\n")) {
			if len(line) == 0 || (line[0] != '+' && line[0] != '-') {
				continue
			}
			text := string(line)
			if l.DefKeyword != "" && strings.Contains(text, l.DefKeyword) {
				current = l.FunctionNameFromLine(text)
			}
			if current == "" {
				continue
			}
			b, ok := acc[current]
			if !ok {
				b = &strings.Builder{}
				acc[current] = b
				order = append(order, current)
			}
			b.WriteString(text)
			b.WriteByte('\n')
		}
	}

	out := make([]FunctionChange, 0, len(order))
	for _, name := range order {
		out = append(out, FunctionChange{Name: name, Changes: acc[name].String()})
	}
	return out, nil
}

// readFile reads path at rev, treating an absent file as empty.
func readFile(ctx context.Context, repo history.Repository, rev, path string) ([]byte, error) {
	content, err := repo.FileAt(ctx, rev, path)
	if errors.Is(err, history.ErrNotFound) {
		return nil, nil
	}
	return content, err
}
