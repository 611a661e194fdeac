package history

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/phobologic/repograph/internal/extract"
	"github.com/phobologic/repograph/internal/lang"
)

// Method is a method or top-level function found in a file. Class is empty
// for top-level functions.
type Method struct {
	Class string
	Name  string
}

// FileMetadata is what the commit graph needs to know about one file's
// latest content.
type FileMetadata struct {
	Classes []string
	Methods []Method
}

// MetadataFromResult lists the classes and functions of an extraction in
// declaration order.
func MetadataFromResult(res *extract.Result) FileMetadata {
	var md FileMetadata
	if res == nil {
		return md
	}
	md.Classes = append(md.Classes, res.ClassOrder...)
	for _, k := range res.FuncOrder {
		md.Methods = append(md.Methods, Method{Class: k.Class, Name: k.Name})
	}
	return md
}

// CollectMetadata extracts the metadata of paths as of rev with default
// options.
func CollectMetadata(ctx context.Context, repo Repository, rev string, paths []string) (map[string]FileMetadata, error) {
	return NewGrapher(Options{}).CollectMetadata(ctx, repo, rev, paths)
}

// CollectMetadata extracts the metadata of every path of a supported
// language as of rev. Files that are absent, unreadable or unparseable are
// left out; only cancellation is an error.
func (gr *Grapher) CollectMetadata(ctx context.Context, repo Repository, rev string, paths []string) (map[string]FileMetadata, error) {
	out := make(map[string]FileMetadata)
	extractors := make(map[string]*extract.Extractor)

	for _, p := range uniqueSorted(paths) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l := lang.ForPath(p)
		if l == nil {
			continue
		}

		content, err := repo.FileAt(ctx, rev, p)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			gr.logger.Warn("reading file for history", slog.String("rev", rev), slog.String("path", p), slog.Any("error", err))
			gr.metrics.HistoryFailure("show")
			continue
		}

		x, ok := extractors[l.Name]
		if !ok {
			x = extract.New(l).WithLogger(gr.logger)
			extractors[l.Name] = x
		}
		res, err := x.Extract(ctx, p, content)
		if err != nil {
			gr.logger.Warn("skipping unparseable file", slog.String("path", p), slog.Any("error", err))
			continue
		}
		out[p] = MetadataFromResult(res)
	}
	return out, nil
}

func uniqueSorted(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	var out []string
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
