// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/phobologic/repograph/internal/diffhist"
	"github.com/phobologic/repograph/internal/graph"
	"github.com/phobologic/repograph/internal/history"
	"github.com/phobologic/repograph/internal/model"
	"github.com/phobologic/repograph/internal/repograph"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// EncodeGraph renders a repository graph as node, edge and module tables.
func EncodeGraph(name string, v graph.View, modules []repograph.ModuleCount) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("graph: %s", encodeValue(name)))
	parts = append(parts, nodeTable(v.Nodes), edgeTable(v.Edges))

	moduleRows := make([][]string, 0, len(modules))
	for _, m := range modules {
		moduleRows = append(moduleRows, []string{m.Module, strconv.Itoa(m.Nodes)})
	}
	parts = append(parts, formatTabular("modules", []string{"module", "nodes"}, moduleRows))

	return strings.Join(parts, "\n")
}

// EncodeHistory renders a commit graph: commits with their metadata, the
// remaining nodes, every edge and, when given, the hotspots.
func EncodeHistory(name string, v graph.View, hotspots []history.Hotspot) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("history: %s", encodeValue(name)))

	var commitRows [][]string
	var others []graph.Node
	for _, n := range v.Nodes {
		if n.Type != model.NodeCommit {
			others = append(others, n)
			continue
		}
		commitRows = append(commitRows, []string{n.ID, n.Author, n.Date, firstLine(n.Message)})
	}
	parts = append(parts, formatTabular("commits", []string{"id", "author", "date", "message"}, commitRows))

	var entityRows [][]string
	for _, n := range others {
		entityRows = append(entityRows, []string{
			n.ID,
			string(n.Type),
			n.FilePath,
			strconv.Itoa(n.ModificationCount),
		})
	}
	parts = append(parts, formatTabular("nodes", []string{"id", "type", "file_path", "modifications"}, entityRows))
	parts = append(parts, edgeTable(v.Edges))

	if len(hotspots) > 0 {
		var hotRows [][]string
		for _, h := range hotspots {
			hotRows = append(hotRows, []string{h.ID, string(h.Type), h.File, strconv.Itoa(h.Count)})
		}
		parts = append(parts, formatTabular("hotspots", []string{"id", "type", "file", "modifications"}, hotRows))
	}

	return strings.Join(parts, "\n")
}

// EncodeEvolution renders function histories, most modified function
// first and each history oldest first.
func EncodeEvolution(evo diffhist.Evolution) string {
	names := evo.Functions()

	funcRows := make([][]string, 0, len(names))
	var modRows [][]string
	for _, name := range names {
		funcRows = append(funcRows, []string{name, strconv.Itoa(len(evo[name]))})
		for _, m := range evo.Chronological(name) {
			date := ""
			if !m.Date.IsZero() {
				date = m.Date.Format(time.RFC3339)
			}
			modRows = append(modRows, []string{name, m.CommitID, date, m.Changes})
		}
	}

	return strings.Join([]string{
		formatTabular("functions", []string{"name", "modifications"}, funcRows),
		formatTabular("changes", []string{"function", "commit", "date", "diff"}, modRows),
	}, "\n")
}

// EncodeCentral renders ranked entities.
func EncodeCentral(ranked []graph.Ranked) string {
	rows := make([][]string, 0, len(ranked))
	for _, r := range ranked {
		rows = append(rows, []string{r.ID, fmt.Sprintf("%.4f", r.Rank)})
	}
	return formatTabular("central", []string{"id", "rank"}, rows)
}

func nodeTable(nodes []graph.Node) string {
	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []string{n.ID, string(n.Type), n.FilePath, string(n.Size)})
	}
	return formatTabular("nodes", []string{"id", "type", "file_path", "size"}, rows)
}

func edgeTable(edges []graph.Edge) string {
	rows := make([][]string, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, []string{e.Source, e.Target, string(e.Type), strconv.Itoa(e.Weight)})
	}
	return formatTabular("edges", []string{"source", "target", "type", "weight"}, rows)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
