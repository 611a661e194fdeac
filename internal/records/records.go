// Package records flattens extracted entities into retrieval records for an
// external indexing collaborator.
package records

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/phobologic/repograph/internal/extract"
	"github.com/phobologic/repograph/internal/model"
)

// ModuleName returns the dotted module path of a slash-separated file path:
// "app/db/store.py" is "app.db.store" and "app/db/__init__.py" is "app.db".
func ModuleName(rel string) string {
	p := strings.TrimSuffix(rel, path.Ext(rel))
	if path.Base(p) == "__init__" {
		if dir := path.Dir(p); dir != "." {
			p = dir
		}
	}
	return strings.ReplaceAll(strings.Trim(p, "/"), "/", ".")
}

// FromResult returns one module record for the file followed by its
// classes, each class's methods and then the top-level functions, all in
// declaration order. source is the full file content.
func FromResult(res *extract.Result, source []byte) []model.Record {
	if res == nil {
		return nil
	}
	module := ModuleName(res.Path)
	out := []model.Record{{
		Name:      module,
		Kind:      model.KindModule,
		Docstring: res.ModuleDocstring,
		Code:      string(source),
		File:      res.Path,
		Module:    module,
	}}

	for _, name := range res.ClassOrder {
		c := res.Classes[name]
		out = append(out, model.Record{
			Name:      c.Name,
			Kind:      model.KindClass,
			Docstring: c.Docstring,
			Signature: c.Signature,
			Code:      c.Code,
			File:      res.Path,
			Module:    module,
			Parent:    module,
			Line:      c.StartLine,
		})
		for _, m := range res.Methods(name) {
			out = append(out, functionRecord(m, model.KindMethod, module, c.Name))
		}
	}
	for _, f := range res.TopLevel() {
		out = append(out, functionRecord(f, model.KindFunction, module, module))
	}
	return out
}

func functionRecord(f *extract.Function, kind model.Kind, module, parent string) model.Record {
	return model.Record{
		Name:      f.Key.String(),
		Kind:      kind,
		Docstring: f.Docstring,
		Signature: f.Signature,
		Code:      f.Code,
		File:      f.FilePath,
		Module:    module,
		Parent:    parent,
		Line:      f.StartLine,
	}
}

// WriteJSONL writes one JSON object per line.
func WriteJSONL(w io.Writer, recs []model.Record) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range recs {
		if err := enc.Encode(&recs[i]); err != nil {
			return fmt.Errorf("encoding record %s: %w", recs[i].Name, err)
		}
	}
	return nil
}

// WriteYAML writes the records as a single YAML sequence.
func WriteYAML(w io.Writer, recs []model.Record) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if recs == nil {
		recs = []model.Record{}
	}
	if err := enc.Encode(recs); err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	return enc.Close()
}
