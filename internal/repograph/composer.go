package repograph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/repograph/internal/discover"
	"github.com/phobologic/repograph/internal/extract"
	"github.com/phobologic/repograph/internal/graph"
	"github.com/phobologic/repograph/internal/lang"
	"github.com/phobologic/repograph/internal/logging"
	"github.com/phobologic/repograph/internal/metrics"
	"github.com/phobologic/repograph/internal/model"
)

// ErrRootNotFound is returned by Walk when the repository root does not
// exist. It is the only fatal condition of a walk.
var ErrRootNotFound = errors.New("repository root not found")

// DefaultInclude is the reference include marker.
const DefaultInclude = "app"

const defaultMaxFileSize = 1_000_000 // 1 MB

// Options configures a Composer.
type Options struct {
	// Include keeps only files whose directory contains this substring.
	// Empty includes every file.
	Include    string
	Languages  []string
	SkipTests  bool
	Thresholds model.Thresholds
	// MaxFileSize skips files larger than this many bytes. Zero disables
	// the limit.
	MaxFileSize int
	// Workers is the number of parsing goroutines. Zero means GOMAXPROCS.
	Workers int
	Policy  graph.MergePolicy
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// DefaultOptions returns the reference configuration.
func DefaultOptions() Options {
	return Options{
		Include:     DefaultInclude,
		Thresholds:  model.DefaultThresholds,
		MaxFileSize: defaultMaxFileSize,
		Policy:      graph.LastWriterWins,
	}
}

// Source is one file handed to the composer.
type Source struct {
	Path    string // slash-separated, relative to the repository root
	Content []byte
}

// ModuleCount is the number of nodes contributed by the files of one leaf
// directory.
type ModuleCount struct {
	Module string `json:"module"`
	Nodes  int    `json:"nodes"`
}

// Skip records a file that did not contribute to the graph.
type Skip struct {
	Path   string
	Reason string // one of the metrics.Result* values
	Err    error
}

// Repository is the outcome of composing a source tree.
type Repository struct {
	Root  string
	Graph *graph.Graph
	// ModuleCounts is in first-seen order.
	ModuleCounts []ModuleCount
	Files        []string
	Skipped      []Skip
}

// Composer accumulates per-file graphs into one repository graph. Files are
// merged in the order they are given, so with LastWriterWins a node defined
// in several files keeps the attributes of the last one.
type Composer struct {
	opts     Options
	logger   *slog.Logger
	repo     *Repository
	modules  map[string]int
	entities []*extract.Result
}

// NewComposer creates a composer with opts. Zero thresholds fall back to
// model.DefaultThresholds.
func NewComposer(opts Options) *Composer {
	if opts.Thresholds == (model.Thresholds{}) {
		opts.Thresholds = model.DefaultThresholds
	}
	if opts.Policy == "" {
		opts.Policy = graph.LastWriterWins
	}
	return &Composer{
		opts:    opts,
		logger:  logging.OrDiscard(opts.Logger),
		repo:    &Repository{Graph: graph.New()},
		modules: make(map[string]int),
	}
}

// Walk discovers the eligible files under root and composes them.
func (c *Composer) Walk(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", root)
	}
	c.repo.Root = abs

	files, err := discover.Files(abs, discover.Options{
		Languages: c.opts.Languages,
		Include:   c.opts.Include,
		SkipTests: c.opts.SkipTests,
	})
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}
	c.logger.Debug("discovered files", slog.String("root", abs), slog.Int("count", len(files)))

	sources := make([]Source, 0, len(files))
	for _, f := range files {
		full := filepath.Join(abs, filepath.FromSlash(f.Path))
		if c.opts.MaxFileSize > 0 {
			if fi, err := os.Stat(full); err == nil && fi.Size() > int64(c.opts.MaxFileSize) {
				c.skip(f.Path, metrics.ResultTooLarge, fmt.Errorf("larger than %d bytes", c.opts.MaxFileSize))
				continue
			}
		}
		content, err := os.ReadFile(full)
		if err != nil {
			c.skip(f.Path, metrics.ResultReadError, err)
			continue
		}
		sources = append(sources, Source{Path: f.Path, Content: content})
	}
	return c.Compose(ctx, sources)
}

// AddSource composes a single file.
func (c *Composer) AddSource(ctx context.Context, src Source) error {
	return c.Compose(ctx, []Source{src})
}

type parsed struct {
	src Source
	res *extract.Result
	err error
}

// Compose parses sources concurrently and merges them in input order.
// Sources with an unsupported extension or outside the include marker are
// ignored. Unparseable files are logged and skipped. The returned error is
// non-nil only when ctx is cancelled or a Strict merge collides.
func (c *Composer) Compose(ctx context.Context, sources []Source) error {
	var eligible []Source
	for _, s := range sources {
		if lang.ForPath(s.Path) == nil || !discover.Included(s.Path, c.opts.Include) {
			continue
		}
		eligible = append(eligible, s)
	}
	if len(eligible) == 0 {
		return nil
	}

	results, err := c.parseAll(ctx, eligible)
	if err != nil {
		return err
	}
	for _, p := range results {
		if err := c.merge(p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Composer) parseAll(ctx context.Context, sources []Source) ([]parsed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	numWorkers := c.opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if numWorkers > len(sources) {
		numWorkers = len(sources)
	}

	results := make([]parsed, len(sources))
	work := make(chan int)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(work)
		for i := range sources {
			select {
			case work <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < numWorkers; i++ {
		g.Go(func() error {
			// Each goroutine gets its own parsers
			extractors := make(map[string]*extract.Extractor)

			for idx := range work {
				src := sources[idx]
				l := lang.ForPath(src.Path)
				x, ok := extractors[l.Name]
				if !ok {
					x = extract.New(l).WithLogger(c.logger)
					extractors[l.Name] = x
				}

				start := time.Now()
				res, err := x.Extract(gctx, src.Path, src.Content)
				c.opts.Metrics.ObserveParse(time.Since(start))
				if err != nil && gctx.Err() != nil {
					return gctx.Err()
				}
				results[idx] = parsed{src: src, res: res, err: err}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Composer) merge(p parsed) error {
	if p.err != nil {
		var perr *extract.ParseError
		reason := metrics.ResultReadError
		if errors.As(p.err, &perr) {
			reason = metrics.ResultParseError
		}
		c.skip(p.src.Path, reason, p.err)
		return nil
	}

	partial := BuildFileGraph(p.src.Path, p.res)
	StampSize(partial, model.Bucket(utf8.RuneCount(p.src.Content), c.opts.Thresholds))
	if err := c.repo.Graph.Merge(partial, c.opts.Policy); err != nil {
		return fmt.Errorf("merging %s: %w", p.src.Path, err)
	}

	c.tally(c.moduleOf(p.src.Path), partial.Len())
	c.repo.Files = append(c.repo.Files, p.src.Path)
	c.entities = append(c.entities, p.res)
	c.opts.Metrics.FileProcessed(metrics.ResultParsed)
	c.opts.Metrics.Merged(partial.Len(), partial.EdgeCount())
	return nil
}

func (c *Composer) skip(p, reason string, err error) {
	c.logger.Warn("skipping file", slog.String("path", p), slog.String("reason", reason), slog.Any("error", err))
	c.repo.Skipped = append(c.repo.Skipped, Skip{Path: p, Reason: reason, Err: err})
	c.opts.Metrics.FileProcessed(reason)
}

// moduleOf names the leaf directory of a file. Files at the top level
// belong to the root directory's name.
func (c *Composer) moduleOf(rel string) string {
	dir := path.Dir(rel)
	if dir != "." {
		return path.Base(dir)
	}
	if c.repo.Root != "" {
		return filepath.Base(c.repo.Root)
	}
	return "."
}

func (c *Composer) tally(module string, nodes int) {
	if i, ok := c.modules[module]; ok {
		c.repo.ModuleCounts[i].Nodes += nodes
		return
	}
	c.modules[module] = len(c.repo.ModuleCounts)
	c.repo.ModuleCounts = append(c.repo.ModuleCounts, ModuleCount{Module: module, Nodes: nodes})
}

// TopModules returns the k modules with the most nodes, ties in first-seen
// order. k <= 0 returns all modules.
func (c *Composer) TopModules(k int) []ModuleCount {
	return TopModules(c.repo.ModuleCounts, k)
}

// TopModules ranks counts (given in first-seen order) by node count.
func TopModules(counts []ModuleCount, k int) []ModuleCount {
	out := make([]ModuleCount, len(counts))
	copy(out, counts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Nodes > out[j].Nodes
	})
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

// Result returns the repository composed so far. The graph is shared with
// the composer.
func (c *Composer) Result() *Repository {
	return c.repo
}

// Entities returns the extraction results of the merged files in merge
// order.
func (c *Composer) Entities() []*extract.Result {
	return c.entities
}
