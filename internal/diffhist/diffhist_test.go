package diffhist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/repograph/internal/history"
	"github.com/phobologic/repograph/internal/lang"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestScanDiffAttributesToLastDefinition(t *testing.T) {
	t.Parallel()

	unified := `--- a/m.py
+++ b/m.py
@@ -1,3 +1,4 @@
-def load(path):
+def load(path, mode="r"):
     data = read(path)
-    return data
+    data = clean(data)
+    return data
@@ -20,2 +21,2 @@
 x = 1
-y = 2
+y = 3
`
	got, err := ScanDiff(lang.Default(), unified)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "load", got[0].Name)
	assert.Equal(t,
		"-def load(path):\n+def load(path, mode=\"r\"):\n-    return data\n+    data = clean(data)\n+    return data\n",
		got[0].Changes)
}

func TestScanDiffHunkResetsFunction(t *testing.T) {
	t.Parallel()

	unified := `--- a/m.py
+++ b/m.py
@@ -1,2 +1,2 @@
-def first():
+def first(x):
     pass
@@ -10,2 +10,2 @@
 def untouched():
-    return 1
+    return 2
@@ -20,2 +20,4 @@
 class A:
+    def second(self):
+        pass
     def third(self):
`
	got, err := ScanDiff(nil, unified)
	require.NoError(t, err)
	assert.Equal(t, []FunctionChange{
		{Name: "first", Changes: "-def first():\n+def first(x):\n"},
		{Name: "second", Changes: "+    def second(self):\n+        pass\n"},
	}, got)
}

func TestScanDiffEmpty(t *testing.T) {
	t.Parallel()

	got, err := ScanDiff(nil, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnifiedDiff(t *testing.T) {
	t.Parallel()

	d, err := UnifiedDiff("m.py", "a\nb\n", "a\nc\n")
	require.NoError(t, err)
	assert.Contains(t, d, "--- a/m.py\n+++ b/m.py\n")
	assert.Contains(t, d, "-b\n+c\n")

	same, err := UnifiedDiff("m.py", "a\n", "a\n")
	require.NoError(t, err)
	assert.Empty(t, same)

	added, err := UnifiedDiff("m.py", "", "def f():\n    pass\n")
	require.NoError(t, err)
	fcs, err := ScanDiff(nil, added)
	require.NoError(t, err)
	assert.Equal(t, []FunctionChange{{Name: "f", Changes: "+def f():\n+    pass\n"}}, fcs)
}

func TestEvolutionOrdering(t *testing.T) {
	t.Parallel()

	evo := Evolution{
		"a": {{CommitID: "c3"}, {CommitID: "c1"}},
		"b": {{CommitID: "c2"}},
		"c": {{CommitID: "c3"}, {CommitID: "c2"}},
	}
	assert.Equal(t, []string{"a", "c", "b"}, evo.Functions())
	assert.Equal(t, []Modification{{CommitID: "c1"}, {CommitID: "c3"}}, evo.Chronological("a"))
	// The stored order is untouched.
	assert.Equal(t, "c3", evo["a"][0].CommitID)
	assert.Empty(t, evo.Chronological("missing"))
}

func TestTrack(t *testing.T) {
	t.Parallel()

	repo := history.NewMemoryRepository()
	repo.Commit("c1", "al", t0, "add", map[string]string{
		"app/m.py":  "def load(path):\n    return open(path)\n",
		"README.md": "docs\n",
	})
	repo.Commit("c2", "al", t0.Add(time.Hour), "change", map[string]string{
		"app/m.py": "def load(path, mode):\n    return open(path, mode)\n",
	})
	repo.Commit("c3", "bo", t0.Add(2*time.Hour), "remove", map[string]string{}, "app/m.py")

	evo, err := NewTracker(Options{}).Track(context.Background(), repo)
	require.NoError(t, err)

	require.Contains(t, evo, "load")
	mods := evo["load"]
	require.Len(t, mods, 2)
	// Newest first; the deletion in c3 is not tracked.
	assert.Equal(t, "c2", mods[0].CommitID)
	assert.Equal(t, t0.Add(time.Hour), mods[0].Date)
	assert.Equal(t,
		"-def load(path):\n-    return open(path)\n+def load(path, mode):\n+    return open(path, mode)\n",
		mods[0].Changes)
	assert.Equal(t, "c1", mods[1].CommitID)
	assert.Equal(t, "+def load(path):\n+    return open(path)\n", mods[1].Changes)

	chrono := evo.Chronological("load")
	assert.Equal(t, "c1", chrono[0].CommitID)
}

func TestTrackMergesFilesOfOneCommit(t *testing.T) {
	t.Parallel()

	repo := history.NewMemoryRepository()
	repo.Commit("c1", "al", t0, "add", map[string]string{
		"a.py": "def run():\n    pass\n",
		"b.py": "def run():\n    return 1\n",
	})

	evo, err := NewTracker(Options{}).Track(context.Background(), repo)
	require.NoError(t, err)
	require.Len(t, evo["run"], 1)
	assert.Equal(t, "+def run():\n+    pass\n+def run():\n+    return 1\n", evo["run"][0].Changes)
}

// flakyRepo fails to read one path.
type flakyRepo struct {
	*history.MemoryRepository
	bad string
}

func (r flakyRepo) FileAt(ctx context.Context, rev, path string) ([]byte, error) {
	if path == r.bad {
		return nil, errors.New("object store unavailable")
	}
	return r.MemoryRepository.FileAt(ctx, rev, path)
}

func TestTrackSkipsUnreadableFiles(t *testing.T) {
	t.Parallel()

	mem := history.NewMemoryRepository()
	mem.Commit("c1", "al", t0, "add", map[string]string{
		"bad.py":  "def broken():\n    pass\n",
		"good.py": "def fine():\n    pass\n",
	})

	evo, err := NewTracker(Options{}).Track(context.Background(), flakyRepo{MemoryRepository: mem, bad: "bad.py"})
	require.NoError(t, err)
	assert.Contains(t, evo, "fine")
	assert.NotContains(t, evo, "broken")
}

func TestTrackMaxCommits(t *testing.T) {
	t.Parallel()

	repo := history.NewMemoryRepository()
	repo.Commit("c1", "al", t0, "one", map[string]string{"m.py": "def old():\n    pass\n"})
	repo.Commit("c2", "al", t0, "two", map[string]string{"n.py": "def new():\n    pass\n"})

	evo, err := NewTracker(Options{MaxCommits: 1}).Track(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, evo.Functions())
}
