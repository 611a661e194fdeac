package history

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/phobologic/repograph/internal/graph"
	"github.com/phobologic/repograph/internal/logging"
	"github.com/phobologic/repograph/internal/metrics"
	"github.com/phobologic/repograph/internal/model"
)

// LinkMode selects how method nodes are attached to class nodes.
type LinkMode string

const (
	// LinkByOwner links each method to the class that declares it in the
	// same file. Top-level functions stay unlinked.
	LinkByOwner LinkMode = "owner"
	// LinkLastClass links every method to the class node registered most
	// recently within the same commit, whatever file or class declares it.
	// Methods seen before any class of the commit stay unlinked. This
	// reproduces the legacy graphs.
	LinkLastClass LinkMode = "last-class"
)

// ParseLinkMode validates a mode name. The empty string selects
// LinkByOwner.
func ParseLinkMode(s string) (LinkMode, error) {
	switch LinkMode(s) {
	case "":
		return LinkByOwner, nil
	case LinkByOwner, LinkLastClass:
		return LinkMode(s), nil
	}
	return "", fmt.Errorf("unknown method linking mode %q", s)
}

// FileNodeID is the commit-graph id of a file.
func FileNodeID(path string) string { return "file_" + path }

// ClassNodeID is the commit-graph id of a class in a file.
func ClassNodeID(path, class string) string { return "class_" + path + "_" + class }

// MethodNodeID is the commit-graph id of a method or function in a file.
func MethodNodeID(path, name string) string { return "method_" + path + "_" + name }

// Options configures a Grapher.
type Options struct {
	Linking LinkMode
	// MaxCommits limits Walk to the newest commits. Zero means all.
	MaxCommits int
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Grapher accumulates commits into a commit graph. Successive Build calls
// add to the same graph and counters.
type Grapher struct {
	mode       LinkMode
	maxCommits int
	logger     *slog.Logger
	metrics    *metrics.Metrics
	graph      *graph.Graph
	counts     map[string]int
}

// NewGrapher creates a grapher.
func NewGrapher(opts Options) *Grapher {
	mode := opts.Linking
	if mode == "" {
		mode = LinkByOwner
	}
	return &Grapher{
		mode:       mode,
		maxCommits: opts.MaxCommits,
		logger:     logging.OrDiscard(opts.Logger),
		metrics:    opts.Metrics,
		graph:      graph.New(),
		counts:     make(map[string]int),
	}
}

// Walk reads the log of repo, collects metadata of every touched file as of
// the newest commit and builds the commit graph.
func (gr *Grapher) Walk(ctx context.Context, repo Repository) (*graph.Graph, error) {
	commits, err := repo.Commits(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	if gr.maxCommits > 0 && len(commits) > gr.maxCommits {
		commits = commits[:gr.maxCommits]
	}
	if len(commits) == 0 {
		return gr.graph, nil
	}

	var paths []string
	for _, c := range commits {
		paths = append(paths, c.Files...)
	}
	md, err := gr.CollectMetadata(ctx, repo, commits[0].ID, paths)
	if err != nil {
		return nil, err
	}
	return gr.Build(commits, md), nil
}

// Build adds commits (newest-first) to the graph. metadata maps a file path
// to the classes and methods of its latest content.
func (gr *Grapher) Build(commits []Commit, metadata map[string]FileMetadata) *graph.Graph {
	for _, c := range commits {
		gr.graph.AddNode(c.ID, graph.Attrs{
			Type:    model.NodeCommit,
			Author:  c.Author,
			Date:    formatDate(c.Date),
			Message: strings.TrimSpace(c.Message),
		})

		lastClass := ""
		for _, file := range c.Files {
			fileID := FileNodeID(file)
			gr.graph.AddNode(fileID, graph.Attrs{Type: model.NodeFile, FilePath: file})
			gr.graph.AddEdge(c.ID, fileID, model.Modifies)

			md := metadata[file]
			classes := make(map[string]struct{}, len(md.Classes))
			for _, cls := range md.Classes {
				classID := ClassNodeID(file, cls)
				gr.counts[classID]++
				gr.graph.AddNode(classID, graph.Attrs{
					Type:              model.NodeClass,
					FilePath:          file,
					ModificationCount: gr.counts[classID],
				})
				gr.graph.AddEdge(fileID, classID, model.Contains)
				classes[cls] = struct{}{}
				lastClass = classID
			}

			for _, m := range md.Methods {
				methodID := MethodNodeID(file, m.Name)
				gr.graph.AddNode(methodID, graph.Attrs{Type: model.NodeMethod, FilePath: file})
				switch gr.mode {
				case LinkLastClass:
					if lastClass != "" {
						gr.graph.AddEdge(lastClass, methodID, model.Contains)
					}
				default:
					if _, ok := classes[m.Class]; ok {
						gr.graph.AddEdge(ClassNodeID(file, m.Class), methodID, model.Contains)
					}
				}
			}
		}
		gr.metrics.CommitProcessed()
	}
	return gr.graph
}

// Graph returns the commit graph built so far.
func (gr *Grapher) Graph() *graph.Graph {
	return gr.graph
}

// Counts returns a copy of the cumulative class modification counts keyed
// by class node id.
func (gr *Grapher) Counts() map[string]int {
	out := make(map[string]int, len(gr.counts))
	for k, v := range gr.counts {
		out[k] = v
	}
	return out
}

// Descendants returns every node reachable from commitID: the files it
// touched and their classes and methods.
func (gr *Grapher) Descendants(commitID string) ([]string, error) {
	return gr.graph.Descendants(commitID)
}

// Hotspot is a frequently modified class or method.
type Hotspot struct {
	ID    string         `json:"id"`
	Type  model.NodeType `json:"type"`
	File  string         `json:"file"`
	Count int            `json:"modification_count"`
}

// Hotspots returns the class and method nodes whose modification count is
// greater than threshold, most modified first.
func Hotspots(g *graph.Graph, threshold int) []Hotspot {
	var out []Hotspot
	for _, n := range g.Nodes() {
		if n.Type != model.NodeClass && n.Type != model.NodeMethod {
			continue
		}
		if n.ModificationCount > threshold {
			out = append(out, Hotspot{ID: n.ID, Type: n.Type, File: n.FilePath, Count: n.ModificationCount})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Hotspots applies the package-level Hotspots to the grapher's graph.
func (gr *Grapher) Hotspots(threshold int) []Hotspot {
	return Hotspots(gr.graph, threshold)
}

// AuthorFiles maps each author to the sorted set of files they touched.
func AuthorFiles(commits []Commit) map[string][]string {
	sets := make(map[string]map[string]struct{})
	for _, c := range commits {
		set, ok := sets[c.Author]
		if !ok {
			set = make(map[string]struct{})
			sets[c.Author] = set
		}
		for _, f := range c.Files {
			set[f] = struct{}{}
		}
	}
	out := make(map[string][]string, len(sets))
	for author, set := range sets {
		files := make([]string, 0, len(set))
		for f := range set {
			files = append(files, f)
		}
		sort.Strings(files)
		out[author] = files
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
