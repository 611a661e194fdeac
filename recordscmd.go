package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/repograph/internal/model"
	"github.com/phobologic/repograph/internal/records"
	"github.com/phobologic/repograph/internal/repograph"
	"github.com/phobologic/repograph/internal/store"
)

type recordsFlags struct {
	format string
	sqlite string
}

func newRecordsCmd(a *app) *cobra.Command {
	var f recordsFlags
	cmd := &cobra.Command{
		Use:   "records [path]",
		Short: "Emit one retrieval record per module, class, method and function",
		Long: `Emit one retrieval record per module, class, method and function.

Records carry the entity's docstring, signature and code together with its
file, dotted module and parent, ready for an indexing service.

Examples:
  repograph records > records.jsonl
  repograph records --format yaml
  repograph records --sqlite index.db`,
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
			return a.runRecords(cmd, root, f)
		},
	}
	cmd.Flags().StringVar(&f.format, "format", "jsonl", "output format (jsonl, yaml)")
	cmd.Flags().StringVar(&f.sqlite, "sqlite", "", "store the records in this SQLite database instead of printing them")
	return cmd
}

func (a *app) runRecords(cmd *cobra.Command, root string, f recordsFlags) error {
	if err := checkFormat(f.format, "jsonl", "yaml"); err != nil {
		return err
	}
	ctx := cmd.Context()

	opts := a.cfg.ComposerOptions()
	opts.Logger = a.logger
	opts.Metrics = a.metrics
	comp := repograph.NewComposer(opts)
	if err := comp.Walk(ctx, root); err != nil {
		return err
	}

	var recs []model.Record
	for _, res := range comp.Entities() {
		source, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(res.Path)))
		if err != nil {
			a.logger.Warn("skipping records", slog.String("path", res.Path), slog.Any("error", err))
			continue
		}
		recs = append(recs, records.FromResult(res, source)...)
	}
	if len(recs) == 0 {
		return errors.New("no parseable files found")
	}

	if f.sqlite != "" {
		db, err := store.Open(f.sqlite)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.SaveRecords(ctx, recs); err != nil {
			return err
		}
		a.logger.Info("saved records", slog.String("database", f.sqlite), slog.Int("records", len(recs)))
		return nil
	}

	switch f.format {
	case "yaml":
		return records.WriteYAML(a.stdout, recs)
	default:
		if err := records.WriteJSONL(a.stdout, recs); err != nil {
			return fmt.Errorf("writing records: %w", err)
		}
		return nil
	}
}
