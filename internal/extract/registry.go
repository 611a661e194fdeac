package extract

import "sort"

// Registry is the set of names known while resolving calls: classes and the
// methods each class declares. It is filled before any call is resolved so
// resolution does not depend on traversal order.
type Registry struct {
	classes map[string]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]map[string]struct{})}
}

// AddClass registers a class name.
func (r *Registry) AddClass(name string) {
	if _, ok := r.classes[name]; !ok {
		r.classes[name] = make(map[string]struct{})
	}
}

// AddMethod registers a method under its class, registering the class too.
func (r *Registry) AddMethod(class, name string) {
	r.AddClass(class)
	r.classes[class][name] = struct{}{}
}

// IsClass reports whether name is a known class.
func (r *Registry) IsClass(name string) bool {
	_, ok := r.classes[name]
	return ok
}

// Owners returns the sorted classes that declare a method called name.
func (r *Registry) Owners(method string) []string {
	var owners []string
	for class, methods := range r.classes {
		if _, ok := methods[method]; ok {
			owners = append(owners, class)
		}
	}
	sort.Strings(owners)
	return owners
}

// Merge adds every name known to other.
func (r *Registry) Merge(other *Registry) {
	if other == nil {
		return
	}
	for class, methods := range other.classes {
		r.AddClass(class)
		for m := range methods {
			r.classes[class][m] = struct{}{}
		}
	}
}

// Call is the syntactic shape of a call expression: Receiver is set for
// name.attr(...) and empty for name(...).
type Call struct {
	Receiver string
	Name     string
}

// Resolve maps a call to a best-guess callee identifier. It is a pure
// function of the registry and the call; ambiguous callees stay unqualified.
func (r *Registry) Resolve(c Call) string {
	if c.Name == "" {
		return ""
	}
	if c.Receiver != "" {
		if r.IsClass(c.Receiver) {
			return c.Receiver + "." + c.Name
		}
		return r.qualify(c.Name)
	}
	if r.IsClass(c.Name) {
		return c.Name + ".__init__"
	}
	return r.qualify(c.Name)
}

// qualify promotes an unqualified callee to Class.method when exactly one
// known class declares it. A top-level function of the same name does not
// block promotion.
func (r *Registry) qualify(name string) string {
	owners := r.Owners(name)
	if len(owners) != 1 {
		return name
	}
	return owners[0] + "." + name
}
