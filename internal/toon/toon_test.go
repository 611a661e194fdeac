package toon

import (
	"strings"
	"testing"
	"time"

	"github.com/phobologic/repograph/internal/diffhist"
	"github.com/phobologic/repograph/internal/graph"
	"github.com/phobologic/repograph/internal/history"
	"github.com/phobologic/repograph/internal/model"
	"github.com/phobologic/repograph/internal/repograph"
)

func TestEncodeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", `""`},
		{"simple", "hello", "hello"},
		{"leading space", " hello", `" hello"`},
		{"trailing space", "hello ", `"hello "`},
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"carriage return", "a\rb", `"a\rb"`},
		{"true keyword", "true", `"true"`},
		{"True keyword", "True", `"True"`},
		{"false keyword", "false", `"false"`},
		{"null keyword", "null", `"null"`},
		{"integer", "42", "42"},
		{"negative integer", "-1", "-1"},
		{"float", "3.14", "3.14"},
		{"zero", "0", "0"},
		{"leading zero invalid", "01", "01"},
		{"comma", "a,b", `"a,b"`},
		{"colon", "a:b", `"a:b"`},
		{"quote", `a"b`, `"a\"b"`},
		{"backslash", `a\b`, `"a\\b"`},
		{"bracket", "a[b", `"a[b"`},
		{"brace", "a{b", `"a{b"`},
		{"dash prefix", "-foo", `"-foo"`},
		{"path", "src/main.py", "src/main.py"},
		{"dotted name", "Foo.__init__", "Foo.__init__"},
		{"signature no special", "run(self) -> None", "run(self) -> None"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := encodeValue(tt.in)
			if got != tt.want {
				t.Errorf("encodeValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeGraph(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.AddNode("Store", graph.Attrs{Type: model.NodeClass, FilePath: "app/db/store.py", Size: model.SizeMedium})
	g.AddNode("Store.get", graph.Attrs{Type: model.NodeMethod, FilePath: "app/db/store.py", Size: model.SizeMedium})
	g.AddEdge("Store", "Store.get", model.Contains)
	g.AddCall("Store.get", "load", 2)

	got := EncodeGraph("myrepo", g.View(), []repograph.ModuleCount{{Module: "db", Nodes: 2}})

	want := strings.Join([]string{
		"graph: myrepo",
		"nodes[2]{id,type,file_path,size}:",
		"  Store,class,app/db/store.py,medium",
		"  Store.get,method,app/db/store.py,medium",
		"edges[2]{source,target,type,weight}:",
		"  Store,Store.get,contains,0",
		"  Store.get,load,calls,2",
		"modules[1]{module,nodes}:",
		"  db,2",
	}, "\n")
	if got != want {
		t.Errorf("EncodeGraph mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestEncodeGraphEmpty(t *testing.T) {
	t.Parallel()

	got := EncodeGraph("empty", graph.New().View(), nil)
	if !strings.Contains(got, "nodes[0]{id,type,file_path,size}:") {
		t.Errorf("expected empty nodes section, got:\n%s", got)
	}
	if !strings.Contains(got, "modules[0]{module,nodes}:") {
		t.Errorf("expected empty modules section, got:\n%s", got)
	}
}

func TestEncodeHistory(t *testing.T) {
	t.Parallel()

	g := graph.New()
	g.AddNode("c1", graph.Attrs{Type: model.NodeCommit, Author: "Ada", Date: "2024-03-01T10:00:00Z", Message: "fix\n\nbody"})
	g.AddNode("file_a.py", graph.Attrs{Type: model.NodeFile, FilePath: "a.py"})
	g.AddEdge("c1", "file_a.py", model.Modifies)

	got := EncodeHistory("repo", g.View(), []history.Hotspot{{ID: "class_a.py_A", Type: model.NodeClass, File: "a.py", Count: 3}})
	lines := strings.Split(got, "\n")
	if lines[1] != "commits[1]{id,author,date,message}:" {
		t.Errorf("line 1: got %q", lines[1])
	}
	if lines[2] != `  c1,Ada,"2024-03-01T10:00:00Z",fix` {
		t.Errorf("line 2: got %q", lines[2])
	}
	if lines[4] != "  file_a.py,file,a.py,0" {
		t.Errorf("line 4: got %q", lines[4])
	}
	if lines[len(lines)-1] != "  class_a.py_A,class,a.py,3" {
		t.Errorf("last line: got %q", lines[len(lines)-1])
	}
}

func TestEncodeEvolution(t *testing.T) {
	t.Parallel()

	evo := diffhist.Evolution{
		"load": {
			{CommitID: "c2", Date: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), Changes: "+x\n"},
			{CommitID: "c1", Changes: "+y\n"},
		},
	}
	got := EncodeEvolution(evo)
	want := strings.Join([]string{
		"functions[1]{name,modifications}:",
		"  load,2",
		"changes[2]{function,commit,date,diff}:",
		`  load,c1,"","+y\n"`,
		`  load,c2,"2024-05-02T00:00:00Z","+x\n"`,
	}, "\n")
	if got != want {
		t.Errorf("EncodeEvolution mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestEncodeCentral(t *testing.T) {
	t.Parallel()

	got := EncodeCentral([]graph.Ranked{{ID: "Store.get", Rank: 0.5}})
	if got != "central[1]{id,rank}:\n  Store.get,0.5000" {
		t.Errorf("got %q", got)
	}
}
