package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/repograph/internal/discover"
	"github.com/phobologic/repograph/internal/graph"
	"github.com/phobologic/repograph/internal/query"
	"github.com/phobologic/repograph/internal/repograph"
	"github.com/phobologic/repograph/internal/store"
	"github.com/phobologic/repograph/internal/toon"
)

type graphFlags struct {
	module    string
	symbol    string
	top       int
	central   int
	format    string
	save      string
	cache     string
	sqlite    string
	skipTests bool
}

func newGraphCmd(a *app) *cobra.Command {
	var f graphFlags
	cmd := &cobra.Command{
		Use:   "graph [path]",
		Short: "Compose the entity and call graph of a source tree",
		Long: `Compose the entity and call graph of a source tree.

Every class, method and function of the included Python files becomes a
node; containment, inheritance and call edges connect them. Output is TOON
tables (nodes, edges, modules) or JSON.

Examples:
  repograph graph
  repograph graph ./service --module app/db
  repograph graph --symbol Store --central 10
  repograph graph --save graph.json.zst`,
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
			return a.runGraph(cmd, root, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.module, "module", "", "keep only nodes whose file path contains this substring")
	fl.StringVar(&f.symbol, "symbol", "", "keep only entities matching this name and their direct callers and callees")
	fl.IntVarP(&f.top, "top", "n", -1, "number of modules to list (default from config)")
	fl.IntVar(&f.central, "central", 0, "list the N most central entities by call PageRank")
	fl.StringVar(&f.format, "format", "toon", "output format (toon, json)")
	fl.StringVar(&f.save, "save", "", "write a snapshot of the full graph (.zst compresses)")
	fl.StringVar(&f.cache, "cache", "", "reuse this snapshot while no source file is newer")
	fl.StringVar(&f.sqlite, "sqlite", "", "store the full graph in this SQLite database")
	fl.BoolVar(&f.skipTests, "skip-tests", false, "skip test files")
	return cmd
}

func (a *app) runGraph(cmd *cobra.Command, root string, f graphFlags) error {
	if err := checkFormat(f.format, "toon", "json"); err != nil {
		return err
	}
	ctx := cmd.Context()

	opts := a.cfg.ComposerOptions()
	opts.SkipTests = opts.SkipTests || f.skipTests
	opts.Logger = a.logger
	opts.Metrics = a.metrics

	var snap *store.Snapshot
	if f.cache != "" && cacheIsFresh(f.cache, root, opts) {
		cached, err := store.LoadFile(f.cache)
		if err == nil {
			a.logger.Debug("using cached graph", slog.String("path", f.cache), slog.String("snapshot", cached.ID))
			snap = cached
		} else {
			a.logger.Warn("ignoring unreadable cache", slog.String("path", f.cache), slog.Any("error", err))
		}
	}

	if snap == nil {
		comp := repograph.NewComposer(opts)
		if err := comp.Walk(ctx, root); err != nil {
			return err
		}
		repo := comp.Result()
		if len(repo.Files) == 0 {
			return errors.New("no parseable files found")
		}
		a.logger.Info("composed repository graph",
			slog.String("root", root),
			slog.Int("files", len(repo.Files)),
			slog.Int("skipped", len(repo.Skipped)),
			slog.Int("nodes", repo.Graph.Len()),
			slog.Int("edges", repo.Graph.EdgeCount()))
		snap = store.NewSnapshot(repo)

		for _, path := range []string{f.cache, f.save} {
			if path == "" {
				continue
			}
			if err := store.SaveFile(path, snap); err != nil {
				return err
			}
		}
	}

	if f.sqlite != "" {
		db, err := store.Open(f.sqlite)
		if err != nil {
			return err
		}
		defer db.Close()
		id, err := db.SaveGraph(ctx, filepath.Base(root), snap.Graph)
		if err != nil {
			return err
		}
		a.logger.Info("saved graph", slog.String("database", f.sqlite), slog.String("id", id))
	}

	g := snap.Graph
	if f.module != "" {
		g = query.ByModule(g, f.module)
	}
	if f.symbol != "" {
		g = query.Related(g, f.symbol)
	}
	if g.Len() == 0 {
		a.logger.Warn("no nodes match the filters", slog.String("module", f.module), slog.String("symbol", f.symbol))
	}

	top := f.top
	if top < 0 {
		top = a.cfg.TopModules
	}
	modules := query.TopModules(snap.Modules, top)

	var central []graph.Ranked
	if f.central > 0 {
		central = query.Central(g, f.central)
	}

	if f.format == "json" {
		return writeJSON(a.stdout, struct {
			ID      string                  `json:"id"`
			Root    string                  `json:"root"`
			Graph   graph.View              `json:"graph"`
			Modules []repograph.ModuleCount `json:"modules"`
			Central []graph.Ranked          `json:"central,omitempty"`
		}{snap.ID, snap.Root, g.View(), modules, central})
	}

	out := toon.EncodeGraph(filepath.Base(root), g.View(), modules)
	if f.central > 0 {
		out += "\n" + toon.EncodeCentral(central)
	}
	_, err := fmt.Fprintln(a.stdout, out)
	return err
}

// cacheIsFresh reports whether the snapshot at cachePath is newer than
// every source file the composer would read.
func cacheIsFresh(cachePath, root string, opts repograph.Options) bool {
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return false
	}
	cacheMtime := cacheInfo.ModTime()

	files, err := discover.Files(root, discover.Options{Languages: opts.Languages, Include: opts.Include, SkipTests: opts.SkipTests})
	if err != nil || len(files) == 0 {
		return false
	}
	for _, f := range files {
		fi, err := os.Stat(filepath.Join(root, filepath.FromSlash(f.Path)))
		if err != nil {
			return false
		}
		if !fi.ModTime().Before(cacheMtime) {
			return false
		}
	}
	return true
}
