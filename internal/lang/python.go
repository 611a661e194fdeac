package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/phobologic/repograph/internal/model"
)

func init() {
	Languages["python"] = &Language{
		Name:             "python",
		Extensions:       []string{".py"},
		lang:             python.GetLanguage(),
		ClassNode:        "class_definition",
		FunctionNode:     "function_definition",
		CallNode:         "call",
		DefKeyword:       "def ",
		DefinitionName:   pythonDefinitionName,
		Bases:            pythonBases,
		Body:             pythonBody,
		Docstring:        pythonDocstring,
		CallTarget:       pythonCallTarget,
		ExtractSignature: pythonExtractSignature,
	}
}

func pythonDefinitionName(node *sitter.Node, source []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return NodeText(name, source)
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "identifier" {
			return NodeText(child, source)
		}
	}
	return ""
}

// pythonBases keeps only bases written as bare identifiers. Attribute bases
// (pkg.Base), subscripts (Generic[T]) and keyword arguments (metaclass=M)
// are dropped.
func pythonBases(node *sitter.Node, source []byte) []string {
	args := node.ChildByFieldName("superclasses")
	if args == nil {
		return nil
	}
	var bases []string
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		if child.Type() == "identifier" {
			bases = append(bases, NodeText(child, source))
		}
	}
	return bases
}

func pythonBody(node *sitter.Node) *sitter.Node {
	return node.ChildByFieldName("body")
}

func pythonDocstring(body *sitter.Node, source []byte) (*sitter.Node, string) {
	if body == nil {
		return nil, ""
	}
	var first *sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		first = child
		break
	}
	if first == nil || first.Type() != "expression_statement" || first.NamedChildCount() != 1 {
		return nil, ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return nil, ""
	}
	text, ok := cleanDocstring(NodeText(str, source))
	if !ok {
		return nil, ""
	}
	return first, text
}

// cleanDocstring strips the quotes of a string literal and normalizes its
// indentation like inspect.cleandoc. Byte and f-string literals are not
// docstrings.
func cleanDocstring(raw string) (string, bool) {
	i := 0
	for i < len(raw) && strings.IndexByte("rRuUbBfF", raw[i]) >= 0 {
		i++
	}
	if strings.ContainsAny(strings.ToLower(raw[:i]), "bf") {
		return "", false
	}
	body := raw[i:]
	switch {
	case len(body) >= 6 && (strings.HasPrefix(body, `"""`) || strings.HasPrefix(body, `'''`)):
		body = body[3 : len(body)-3]
	case len(body) >= 2:
		body = body[1 : len(body)-1]
	default:
		return "", false
	}
	return cleandoc(body), true
}

func cleandoc(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\t", "        "), "\n")

	margin := -1
	for _, line := range lines[1:] {
		stripped := strings.TrimLeft(line, " ")
		if stripped == "" {
			continue
		}
		if indent := len(line) - len(stripped); margin < 0 || indent < margin {
			margin = indent
		}
	}

	lines[0] = strings.TrimLeft(lines[0], " ")
	if margin > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= margin {
				lines[i] = lines[i][margin:]
			} else {
				lines[i] = strings.TrimLeft(lines[i], " ")
			}
		}
	}

	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// pythonCallTarget handles name(...) and name.attr(...). Chained receivers
// (a.b.c(), f().g()) and subscripted callees yield ok == false.
func pythonCallTarget(node *sitter.Node, source []byte) (string, string, bool) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return "", "", false
	}
	switch fn.Type() {
	case "identifier":
		return "", NodeText(fn, source), true
	case "attribute":
		obj := fn.ChildByFieldName("object")
		attr := fn.ChildByFieldName("attribute")
		if obj == nil || attr == nil || obj.Type() != "identifier" {
			return "", "", false
		}
		return NodeText(obj, source), NodeText(attr, source), true
	}
	return "", "", false
}

func pythonExtractSignature(defNode *sitter.Node, kind model.NodeType, source []byte) string {
	if kind == model.NodeClass {
		return pythonExtractClassSignature(defNode, source)
	}
	return pythonExtractFunctionSignature(defNode, source)
}

func pythonExtractClassSignature(node *sitter.Node, source []byte) string {
	var name, args string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			name = NodeText(child, source)
		case "argument_list":
			args = CollapseWhitespace(NodeText(child, source))
		}
	}
	return name + args
}

func pythonExtractFunctionSignature(node *sitter.Node, source []byte) string {
	var name, params, returnType string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "identifier":
			name = NodeText(child, source)
		case "parameters":
			params = CollapseWhitespace(NodeText(child, source))
		case "type":
			returnType = NodeText(child, source)
		}
	}
	sig := name + params
	if returnType != "" {
		sig += " -> " + returnType
	}
	return sig
}
