package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/phobologic/repograph/internal/diffhist"
	"github.com/phobologic/repograph/internal/graph"
	"github.com/phobologic/repograph/internal/history"
	"github.com/phobologic/repograph/internal/model"
	"github.com/phobologic/repograph/internal/query"
	"github.com/phobologic/repograph/internal/store"
	"github.com/phobologic/repograph/internal/toon"
	"github.com/phobologic/repograph/internal/vcs"
)

type historyFlags struct {
	commit   string
	hotspots int
	authors  bool
	linking  string
	format   string
	sqlite   string
}

func newHistoryCmd(a *app) *cobra.Command {
	var f historyFlags
	cmd := &cobra.Command{
		Use:   "history [path]",
		Short: "Build the commit graph of a git repository",
		Long: `Build the commit graph of a git repository.

Commits link to the files they touched; files link to the classes they
declare, which carry how many commits modified them.

Examples:
  repograph history
  repograph history --hotspots 3
  repograph history --commit 4f2a9c1
  repograph history --linking last-class --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			if err := a.setup(root); err != nil {
				return err
			}
			defer a.finish()
			return a.runHistory(cmd, root, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.commit, "commit", "", "list what this commit (id or unique prefix) affected")
	fl.IntVar(&f.hotspots, "hotspots", -1, "list classes and methods modified more than N times")
	fl.BoolVar(&f.authors, "authors", false, "list the files each author touched")
	fl.StringVar(&f.linking, "linking", "", "method linking mode (owner, last-class)")
	fl.StringVar(&f.format, "format", "toon", "output format (toon, json)")
	fl.StringVar(&f.sqlite, "sqlite", "", "store the commit graph in this SQLite database")
	return cmd
}

func (a *app) runHistory(cmd *cobra.Command, root string, f historyFlags) error {
	if err := checkFormat(f.format, "toon", "json"); err != nil {
		return err
	}
	mode := a.cfg.LinkMode()
	if f.linking != "" {
		m, err := history.ParseLinkMode(f.linking)
		if err != nil {
			return err
		}
		mode = m
	}

	ctx := cmd.Context()
	repo, err := vcs.Open(ctx, root)
	if err != nil {
		return err
	}

	gr := history.NewGrapher(history.Options{
		Linking:    mode,
		MaxCommits: a.cfg.History.MaxCommits,
		Logger:     a.logger,
		Metrics:    a.metrics,
	})
	g, err := gr.Walk(ctx, repo)
	if err != nil {
		return err
	}
	a.logger.Info("built commit graph", slog.String("root", root), slog.Int("nodes", g.Len()), slog.Int("edges", g.EdgeCount()))

	if f.sqlite != "" {
		db, err := store.Open(f.sqlite)
		if err != nil {
			return err
		}
		defer db.Close()
		if _, err := db.SaveGraph(ctx, filepath.Base(root)+"@history", g); err != nil {
			return err
		}
	}

	if f.commit != "" {
		id, err := resolveCommit(g, f.commit)
		if err != nil {
			return err
		}
		ids, err := query.Descendants(g, id)
		if err != nil {
			return err
		}
		if f.format == "json" {
			return writeJSON(a.stdout, map[string]any{"commit": id, "affected": ids})
		}
		_, err = fmt.Fprintln(a.stdout, strings.Join(ids, "\n"))
		return err
	}

	if f.authors {
		commits, err := repo.Commits(ctx)
		if err != nil {
			return err
		}
		byAuthor := history.AuthorFiles(commits)
		if f.format == "json" {
			return writeJSON(a.stdout, byAuthor)
		}
		authors := make([]string, 0, len(byAuthor))
		for author := range byAuthor {
			authors = append(authors, author)
		}
		sort.Strings(authors)
		for _, author := range authors {
			if _, err := fmt.Fprintf(a.stdout, "%s: %s\n", author, strings.Join(byAuthor[author], " ")); err != nil {
				return err
			}
		}
		return nil
	}

	var hot []history.Hotspot
	if f.hotspots >= 0 {
		hot = query.Hotspots(g, f.hotspots)
	}
	if f.format == "json" {
		return writeJSON(a.stdout, struct {
			Graph    graph.View        `json:"graph"`
			Hotspots []history.Hotspot `json:"hotspots,omitempty"`
		}{g.View(), hot})
	}
	_, err = fmt.Fprintln(a.stdout, toon.EncodeHistory(filepath.Base(root), g.View(), hot))
	return err
}

// resolveCommit finds the commit node whose id equals or uniquely starts
// with ref.
func resolveCommit(g *graph.Graph, ref string) (string, error) {
	if n, ok := g.Node(ref); ok && n.Type == model.NodeCommit {
		return ref, nil
	}
	var matches []string
	for _, n := range g.Nodes() {
		if n.Type == model.NodeCommit && strings.HasPrefix(n.ID, ref) {
			matches = append(matches, n.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: commit %s", graph.ErrNodeNotFound, ref)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("commit prefix %s is ambiguous (%d matches)", ref, len(matches))
}

type evolutionFlags struct {
	function string
	format   string
}

func newEvolutionCmd(a *app) *cobra.Command {
	var f evolutionFlags
	cmd := &cobra.Command{
		Use:   "evolution [path]",
		Short: "Show how each function changed across commits",
		Long: `Show how each function changed across commits.

Every commit is diffed against its parent and the changed lines are
attributed to the function whose definition was last seen in the hunk.

Examples:
  repograph evolution
  repograph evolution --function load_config
  repograph evolution --max-commits 50 --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := rootArg(args)
			if err != nil {
				return err
			}
			if err := a.setup(root); err != nil {
				return err
			}
			defer a.finish()
			return a.runEvolution(cmd, root, f)
		},
	}
	cmd.Flags().StringVar(&f.function, "function", "", "show the history of one function, oldest first")
	cmd.Flags().StringVar(&f.format, "format", "toon", "output format (toon, json)")
	return cmd
}

func (a *app) runEvolution(cmd *cobra.Command, root string, f evolutionFlags) error {
	if err := checkFormat(f.format, "toon", "json"); err != nil {
		return err
	}
	ctx := cmd.Context()
	repo, err := vcs.Open(ctx, root)
	if err != nil {
		return err
	}

	evo, err := diffhist.NewTracker(diffhist.Options{
		MaxCommits: a.cfg.History.MaxCommits,
		Logger:     a.logger,
		Metrics:    a.metrics,
	}).Track(ctx, repo)
	if err != nil {
		return err
	}
	a.logger.Info("tracked function history", slog.String("root", root), slog.Int("functions", len(evo)))

	if f.function != "" {
		mods := evo.Chronological(f.function)
		if len(mods) == 0 {
			return fmt.Errorf("no recorded changes to function %q", f.function)
		}
		if f.format == "json" {
			return writeJSON(a.stdout, mods)
		}
		for _, m := range mods {
			if _, err := fmt.Fprintf(a.stdout, "commit %s  %s\n%s\n", m.CommitID, m.Date.Format(time.RFC3339), m.Changes); err != nil {
				return err
			}
		}
		return nil
	}

	if f.format == "json" {
		return writeJSON(a.stdout, evo)
	}
	_, err = fmt.Fprintln(a.stdout, toon.EncodeEvolution(evo))
	return err
}
