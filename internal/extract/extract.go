// Package extract turns one source file into class and function entities,
// attributing the calls made inside each function body to best-guess callees.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/repograph/internal/lang"
	"github.com/phobologic/repograph/internal/logging"
	"github.com/phobologic/repograph/internal/model"
)

// Class is a class definition found in a file.
type Class struct {
	Name      string
	FilePath  string
	Docstring string
	Code      string
	Signature string
	Bases     []string
	Methods   []string // declaration order
	StartLine int
	EndLine   int
}

// FuncKey identifies a function or method within a file. Class is empty for
// functions defined outside any class.
type FuncKey struct {
	Class string
	Name  string
}

// String returns "Class.name" for methods and "name" otherwise.
func (k FuncKey) String() string {
	if k.Class == "" {
		return k.Name
	}
	return k.Class + "." + k.Name
}

// IsMethod reports whether the key belongs to a class.
func (k FuncKey) IsMethod() bool {
	return k.Class != ""
}

// Function is a function or method definition with its usage multiset.
type Function struct {
	Key       FuncKey
	FilePath  string
	Docstring string
	Code      string
	Signature string
	StartLine int
	EndLine   int
	// Usage maps a resolved callee identifier to the number of calls.
	Usage map[string]int
}

// Result holds the entities of one file.
type Result struct {
	Path            string
	ModuleDocstring string
	Classes         map[string]*Class
	Functions       map[FuncKey]*Function
	ClassOrder      []string
	FuncOrder       []FuncKey
}

// Methods returns the method entities of a class in declaration order.
func (r *Result) Methods(class string) []*Function {
	c, ok := r.Classes[class]
	if !ok {
		return nil
	}
	out := make([]*Function, 0, len(c.Methods))
	for _, m := range c.Methods {
		if f, ok := r.Functions[FuncKey{Class: class, Name: m}]; ok {
			out = append(out, f)
		}
	}
	return out
}

// TopLevel returns the functions not attributed to a class, in declaration order.
func (r *Result) TopLevel() []*Function {
	var out []*Function
	for _, k := range r.FuncOrder {
		if !k.IsMethod() {
			out = append(out, r.Functions[k])
		}
	}
	return out
}

// ParseError reports source text that is not syntactically valid.
type ParseError struct {
	Path   string
	Line   int
	Column int
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("syntax error at %d:%d", e.Line, e.Column)
	}
	return fmt.Sprintf("%s:%d:%d: syntax error", e.Path, e.Line, e.Column)
}

// Extractor parses files of one language. It keeps a tree-sitter parser and
// must not be shared between goroutines.
type Extractor struct {
	lang   *lang.Language
	parser *sitter.Parser
	seed   *Registry
	logger *slog.Logger
}

// New creates an extractor for l, or for the default language when l is nil.
func New(l *lang.Language) *Extractor {
	if l == nil {
		l = lang.Default()
	}
	return &Extractor{
		lang:   l,
		parser: l.NewParser(),
		logger: logging.Discard(),
	}
}

// WithRegistry seeds call resolution with names declared elsewhere, e.g. in
// other files of the repository.
func (x *Extractor) WithRegistry(r *Registry) *Extractor {
	x.seed = r
	return x
}

// WithLogger sets the logger used for resolution diagnostics.
func (x *Extractor) WithLogger(l *slog.Logger) *Extractor {
	if l != nil {
		x.logger = l
	}
	return x
}

// Extract is a convenience wrapper that parses source with a fresh
// extractor for the default language.
func Extract(ctx context.Context, path string, source []byte) (*Result, error) {
	return New(nil).Extract(ctx, path, source)
}

// Extract parses source and returns its classes and functions. path is only
// recorded on entities and errors. Invalid syntax yields a *ParseError.
func (x *Extractor) Extract(ctx context.Context, path string, source []byte) (*Result, error) {
	res := &Result{
		Path:      path,
		Classes:   make(map[string]*Class),
		Functions: make(map[FuncKey]*Function),
	}
	if len(source) == 0 {
		return res, nil
	}

	tree, err := x.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		perr := &ParseError{Path: path, Line: 1, Column: 1}
		if bad := firstError(root); bad != nil {
			perr.Line = int(bad.StartPoint().Row) + 1
			perr.Column = int(bad.StartPoint().Column) + 1
		}
		return nil, perr
	}

	reg := NewRegistry()
	reg.Merge(x.seed)
	x.register(root, "", source, reg)

	w := &walker{lang: x.lang, source: source, reg: reg, res: res, logger: x.logger}
	if _, doc := x.lang.Docstring(root, source); doc != "" {
		res.ModuleDocstring = doc
	}
	w.visit(root, scope{})
	w.linkMethods()

	return res, nil
}

// register is the first pass: it records every class and method name so the
// second pass can resolve calls to definitions that appear later in the file.
func (x *Extractor) register(n *sitter.Node, class string, source []byte, reg *Registry) {
	switch n.Type() {
	case x.lang.ClassNode:
		name := x.lang.DefinitionName(n, source)
		reg.AddClass(name)
		class = name
	case x.lang.FunctionNode:
		if class != "" {
			reg.AddMethod(class, x.lang.DefinitionName(n, source))
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		x.register(n.NamedChild(i), class, source, reg)
	}
}

// scope is the traversal context: the innermost enclosing class and the
// innermost enclosing function, if any.
type scope struct {
	class string
	fn    *Function
}

type walker struct {
	lang   *lang.Language
	source []byte
	reg    *Registry
	res    *Result
	logger *slog.Logger
}

func (w *walker) visit(n *sitter.Node, sc scope) {
	switch n.Type() {
	case w.lang.ClassNode:
		c := w.class(n)
		w.visitChildren(n, sc, w.lang.Body(n), scope{class: c.Name, fn: sc.fn})
		return
	case w.lang.FunctionNode:
		f := w.function(n, sc.class)
		w.visitChildren(n, sc, w.lang.Body(n), scope{class: sc.class, fn: f})
		return
	case w.lang.CallNode:
		w.call(n, sc)
	}
	w.visitChildren(n, sc, nil, sc)
}

// visitChildren visits the named children of n with outer scope, except
// body, which is visited with inner.
func (w *walker) visitChildren(n *sitter.Node, outer scope, body *sitter.Node, inner scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if body != nil && sameNode(child, body) {
			w.visit(child, inner)
			continue
		}
		w.visit(child, outer)
	}
}

func (w *walker) class(n *sitter.Node) *Class {
	name := w.lang.DefinitionName(n, w.source)
	docNode, doc := w.lang.Docstring(w.lang.Body(n), w.source)
	c := &Class{
		Name:      name,
		FilePath:  w.res.Path,
		Docstring: doc,
		Code:      codeSpan(w.source, n, docNode),
		Signature: w.lang.ExtractSignature(n, model.NodeClass, w.source),
		Bases:     w.lang.Bases(n, w.source),
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
	}
	if _, seen := w.res.Classes[name]; !seen {
		w.res.ClassOrder = append(w.res.ClassOrder, name)
	}
	w.res.Classes[name] = c
	return c
}

func (w *walker) function(n *sitter.Node, class string) *Function {
	key := FuncKey{Class: class, Name: w.lang.DefinitionName(n, w.source)}
	docNode, doc := w.lang.Docstring(w.lang.Body(n), w.source)
	kind := model.NodeFunction
	if key.IsMethod() {
		kind = model.NodeMethod
	}
	f := &Function{
		Key:       key,
		FilePath:  w.res.Path,
		Docstring: doc,
		Code:      codeSpan(w.source, n, docNode),
		Signature: w.lang.ExtractSignature(n, kind, w.source),
		StartLine: int(n.StartPoint().Row) + 1,
		EndLine:   int(n.EndPoint().Row) + 1,
		Usage:     make(map[string]int),
	}
	if _, seen := w.res.Functions[key]; !seen {
		w.res.FuncOrder = append(w.res.FuncOrder, key)
	}
	w.res.Functions[key] = f
	return f
}

func (w *walker) call(n *sitter.Node, sc scope) {
	if sc.fn == nil {
		return
	}
	receiver, name, ok := w.lang.CallTarget(n, w.source)
	if !ok {
		return
	}
	callee := w.reg.Resolve(Call{Receiver: receiver, Name: name})
	if callee == "" {
		return
	}
	if !strings.Contains(callee, ".") {
		if owners := w.reg.Owners(callee); len(owners) > 1 {
			w.logger.Debug("ambiguous callee left unqualified",
				slog.String("file", w.res.Path),
				slog.String("caller", sc.fn.Key.String()),
				slog.String("callee", callee),
				slog.Int("candidates", len(owners)))
		}
	}
	sc.fn.Usage[callee]++
}

// linkMethods fills Class.Methods from the surviving function keys.
func (w *walker) linkMethods() {
	for _, k := range w.res.FuncOrder {
		if c, ok := w.res.Classes[k.Class]; ok && k.IsMethod() {
			c.Methods = append(c.Methods, k.Name)
		}
	}
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return nil
}

// codeSpan returns the whole source lines spanned by n, without the
// docstring statement doc when one is given.
func codeSpan(source []byte, n, doc *sitter.Node) string {
	start := lineStart(source, int(n.StartByte()))
	end := lineEnd(source, int(n.EndByte()))
	if doc == nil {
		return string(source[start:end])
	}

	ds, de := int(doc.StartByte()), int(doc.EndByte())
	if ls := lineStart(source, ds); isBlank(source[ls:ds]) {
		ds = ls
	}
	if le := lineEnd(source, de); isBlank(source[de:le]) {
		de = le
		if de < len(source) && source[de] == '\n' {
			de++
		}
	}
	ds = max(ds, start)
	de = min(de, end)
	return strings.TrimRight(string(source[start:ds])+string(source[de:end]), " \t\r\n")
}

func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

func lineEnd(source []byte, pos int) int {
	for pos < len(source) && source[pos] != '\n' {
		pos++
	}
	return pos
}

func isBlank(b []byte) bool {
	for _, c := range b {
		if c != ' ' && c != '\t' && c != '\r' {
			return false
		}
	}
	return true
}
