// Package lang provides a language registry mapping file extensions to
// tree-sitter languages and the grammar knowledge the extractor needs.
package lang

import (
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/repograph/internal/model"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language

	// Grammar node types for definitions and call expressions.
	ClassNode    string
	FunctionNode string
	CallNode     string

	// DefKeyword marks a function definition line in raw diff text.
	DefKeyword string

	// DefinitionName returns the declared name of a class or function node.
	DefinitionName func(node *sitter.Node, source []byte) string

	// Bases returns the base-class names of a class node that are plain
	// identifiers. Other base expressions are dropped.
	Bases func(node *sitter.Node, source []byte) []string

	// Body returns the statement block of a definition node, or nil.
	Body func(node *sitter.Node) *sitter.Node

	// Docstring returns the docstring statement of a body block and its
	// cleaned text. The node is nil when the body has no docstring.
	Docstring func(body *sitter.Node, source []byte) (*sitter.Node, string)

	// CallTarget decomposes a call node into an optional receiver
	// identifier and the called name. ok is false for call shapes that
	// cannot be attributed.
	CallTarget func(node *sitter.Node, source []byte) (receiver, name string, ok bool)

	// ExtractSignature returns a signature string for a definition node.
	ExtractSignature func(node *sitter.Node, kind model.NodeType, source []byte) string
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// FunctionNameFromLine extracts the function name from a raw source or diff
// line containing DefKeyword, e.g. "+    def load(self):" → "load".
// Returns "" when the line holds no definition keyword.
func (l *Language) FunctionNameFromLine(line string) string {
	if l.DefKeyword == "" {
		return ""
	}
	idx := strings.Index(line, l.DefKeyword)
	if idx < 0 {
		return ""
	}
	rest := line[idx+len(l.DefKeyword):]
	if paren := strings.IndexByte(rest, '('); paren >= 0 {
		rest = rest[:paren]
	}
	return strings.TrimSpace(rest)
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// ForPath returns the language registered for the path's extension, or nil.
func ForPath(path string) *Language {
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 || strings.ContainsAny(path[dot:], `/\`) {
		return nil
	}
	return Languages[ForExtension(path[dot:])]
}

// Default returns the language used when a caller does not pick one.
func Default() *Language {
	return Languages["python"]
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
