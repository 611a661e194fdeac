package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/repograph/internal/repograph"
	"github.com/phobologic/repograph/internal/store"
)

const modelsPy = `class User:
    def __init__(self, name):
        self.name = name

    def greet(self):
        return format_name(self.name)


def format_name(name):
    return name.title()
`

const viewsPy = `from app.models import User


def show(name):
    user = User(name)
    return user.greet()
`

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func createSampleRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, dir, "app/models.py", modelsPy)
	writeTestFile(t, dir, "app/views.py", viewsPy)
	writeTestFile(t, dir, "scripts/tool.py", "def tool():\n    pass\n")
	return dir
}

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	out, _, err := runCmd(t, "--version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "repograph dev\n" {
		t.Errorf("got %q", out)
	}
}

func TestRunGraphBasic(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	out, _, err := runCmd(t, "graph", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"nodes[5]{id,type,file_path,size}:",
		"  User,class,app/models.py,",
		"  User.greet,method,app/models.py,",
		"  show,function,app/views.py,",
		"  User,User.greet,contains,0",
		"  User.greet,format_name,calls,1",
		"modules[1]{module,nodes}:",
		"  app,5",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Files outside the include marker are not read.
	if strings.Contains(out, "tool") {
		t.Errorf("scripts/tool.py should be excluded:\n%s", out)
	}
}

func TestRunGraphJSON(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	out, _, err := runCmd(t, "graph", "--format", "json", "--central", "2", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got struct {
		ID    string `json:"id"`
		Graph struct {
			Nodes []struct {
				ID string `json:"id"`
			} `json:"nodes"`
		} `json:"graph"`
		Modules []repograph.ModuleCount `json:"modules"`
		Central []struct {
			ID string `json:"id"`
		} `json:"central"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if got.ID == "" {
		t.Error("expected a snapshot id")
	}
	if len(got.Graph.Nodes) != 5 {
		t.Errorf("expected 5 nodes, got %d", len(got.Graph.Nodes))
	}
	if len(got.Modules) != 1 || got.Modules[0].Nodes != 5 {
		t.Errorf("unexpected modules %+v", got.Modules)
	}
	if len(got.Central) != 2 {
		t.Errorf("expected 2 central entities, got %d", len(got.Central))
	}
}

func TestRunGraphModuleFilter(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	out, _, err := runCmd(t, "graph", "--module", "views", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "nodes[1]{id,type,file_path,size}:") {
		t.Errorf("expected only the views node:\n%s", out)
	}
	if strings.Contains(out, "User.greet") {
		t.Errorf("models nodes should be filtered out:\n%s", out)
	}
}

func TestRunGraphSymbolFilter(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	out, _, err := runCmd(t, "graph", "--symbol", "greet", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "nodes[2]{id,type,file_path,size}:") {
		t.Errorf("expected greet and its callee:\n%s", out)
	}
	if !strings.Contains(out, "  User.greet,format_name,calls,1") {
		t.Errorf("expected the call edge:\n%s", out)
	}
}

func TestRunGraphCentral(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	out, _, err := runCmd(t, "graph", "--central", "3", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "central[3]{id,rank}:") {
		t.Errorf("expected central table:\n%s", out)
	}
}

func TestRunGraphCache(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	cachePath := filepath.Join(t.TempDir(), "graph.json.zst")

	out1, _, err := runCmd(t, "graph", "--cache", cachePath, dir)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := os.Stat(cachePath); err != nil {
		t.Fatalf("cache not created: %v", err)
	}

	out2, stderr, err := runCmd(t, "graph", "--cache", cachePath, "--log-level", "debug", dir)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if out1 != out2 {
		t.Errorf("cache mismatch:\nfirst:\n%s\nsecond:\n%s", out1, out2)
	}
	if !strings.Contains(stderr, "using cached graph") {
		t.Errorf("expected cache hit, stderr:\n%s", stderr)
	}
}

func TestRunGraphSave(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	savePath := filepath.Join(t.TempDir(), "graph.json")

	if _, _, err := runCmd(t, "graph", "--save", savePath, dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, err := store.LoadFile(savePath)
	if err != nil {
		t.Fatalf("loading snapshot: %v", err)
	}
	if snap.Graph.Len() != 5 {
		t.Errorf("expected 5 nodes, got %d", snap.Graph.Len())
	}
}

func TestRunGraphSQLite(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	dbPath := filepath.Join(t.TempDir(), "repograph.db")

	if _, _, err := runCmd(t, "graph", "--sqlite", dbPath, dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	g, err := db.LoadGraph(context.Background(), filepath.Base(dir))
	if err != nil {
		t.Fatalf("loading graph: %v", err)
	}
	if g.Len() != 5 {
		t.Errorf("expected 5 nodes, got %d", g.Len())
	}
}

func TestRunGraphNoFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "README.md", "# Hello")

	_, _, err := runCmd(t, "graph", dir)
	if err == nil || !strings.Contains(err.Error(), "no parseable files") {
		t.Errorf("expected no parseable files error, got %v", err)
	}
}

func TestRunGraphMissingRoot(t *testing.T) {
	t.Parallel()

	_, _, err := runCmd(t, "graph", filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, repograph.ErrRootNotFound) {
		t.Errorf("expected ErrRootNotFound, got %v", err)
	}
}

func TestRunGraphBadFormat(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	_, _, err := runCmd(t, "graph", "--format", "xml", dir)
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected unknown format error, got %v", err)
	}
}

func TestRunGraphConfigFile(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	writeTestFile(t, dir, ".repograph.yaml", "include: scripts\n")

	out, _, err := runCmd(t, "graph", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "nodes[1]{id,type,file_path,size}:") || !strings.Contains(out, "  tool,function,scripts/tool.py,") {
		t.Errorf("expected only scripts/tool.py:\n%s", out)
	}

	// The flag wins over the file.
	out, _, err = runCmd(t, "graph", "--include", "app", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "nodes[5]") {
		t.Errorf("expected the app files:\n%s", out)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	writeTestFile(t, dir, ".repograph.yaml", "merge_policy: newest\n")

	_, _, err := runCmd(t, "graph", dir)
	if err == nil || !strings.Contains(err.Error(), "unknown merge policy") {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestRunStats(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	_, stderr, err := runCmd(t, "graph", "--stats", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stderr, "metric=repograph_files_total") {
		t.Errorf("expected counters in stderr:\n%s", stderr)
	}
}

func TestRunRecords(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)

	out, _, err := runCmd(t, "records", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	// Two module records, User, two methods, format_name and show.
	if len(lines) != 7 {
		t.Fatalf("expected 7 records, got %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], `"name":"app.models"`) {
		t.Errorf("first record should be the models module: %s", lines[0])
	}

	out, _, err = runCmd(t, "records", "--format", "yaml", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "- name: app.models\n") {
		t.Errorf("unexpected YAML:\n%s", out)
	}
}

func TestRunRecordsSQLite(t *testing.T) {
	t.Parallel()
	dir := createSampleRepo(t)
	dbPath := filepath.Join(t.TempDir(), "records.db")

	out, _, err := runCmd(t, "records", "--sqlite", dbPath, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "" {
		t.Errorf("expected no stdout, got %q", out)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	recs, err := db.Records(context.Background(), "app.views")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("expected module and show records, got %d", len(recs))
	}
}

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Ada",
		"GIT_AUTHOR_EMAIL=ada@example.com",
		"GIT_COMMITTER_NAME=Ada",
		"GIT_COMMITTER_EMAIL=ada@example.com",
		"GIT_CONFIG_GLOBAL=/dev/null",
		"GIT_CONFIG_NOSYSTEM=1",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

// createGitRepo commits the sample files, then changes User.greet.
func createGitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := createSampleRepo(t)
	git(t, dir, "init", "-q")
	git(t, dir, "add", ".")
	git(t, dir, "commit", "-q", "-m", "add models")

	writeTestFile(t, dir, "app/models.py", strings.Replace(modelsPy,
		"    def greet(self):\n        return format_name(self.name)",
		"    def greet(self, punct):\n        return format_name(self.name) + punct", 1))
	git(t, dir, "commit", "-q", "-am", "greet with punctuation")
	return dir
}

func TestRunHistory(t *testing.T) {
	t.Parallel()
	dir := createGitRepo(t)

	out, _, err := runCmd(t, "history", "--hotspots", "1", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"commits[2]{id,author,date,message}:",
		"greet with punctuation",
		"  file_app/models.py,file,app/models.py,0",
		"hotspots[1]{id,type,file,modifications}:",
		"  class_app/models.py_User,class,app/models.py,2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunHistoryCommit(t *testing.T) {
	t.Parallel()
	dir := createGitRepo(t)
	head := git(t, dir, "rev-parse", "HEAD")

	out, _, err := runCmd(t, "history", "--commit", head[:8], dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "class_app/models.py_User" {
		t.Errorf("unexpected descendants:\n%s", out)
	}
	if !strings.Contains(out, "file_app/models.py") || strings.Contains(out, "file_app/views.py") {
		t.Errorf("HEAD only touched models.py:\n%s", out)
	}

	_, _, err = runCmd(t, "history", "--commit", "zzzz", dir)
	if err == nil {
		t.Error("expected an error for an unknown commit")
	}
}

func TestRunHistoryAuthors(t *testing.T) {
	t.Parallel()
	dir := createGitRepo(t)

	out, _, err := runCmd(t, "history", "--authors", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Ada: app/models.py app/views.py scripts/tool.py\n" {
		t.Errorf("got %q", out)
	}
}

func TestRunHistoryNotRepository(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	_, _, err := runCmd(t, "history", createSampleRepo(t))
	if err == nil || !strings.Contains(err.Error(), "not a git repository") {
		t.Errorf("expected not a repository error, got %v", err)
	}
}

func TestRunEvolution(t *testing.T) {
	t.Parallel()
	dir := createGitRepo(t)

	out, _, err := runCmd(t, "evolution", "--function", "greet", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(out, "commit "); n != 2 {
		t.Errorf("expected 2 modifications, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, "+    def greet(self, punct):") {
		t.Errorf("expected the new definition:\n%s", out)
	}

	out, _, err = runCmd(t, "evolution", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "  greet,2") {
		t.Errorf("expected greet with 2 modifications:\n%s", out)
	}

	_, _, err = runCmd(t, "evolution", "--function", "missing", dir)
	if err == nil {
		t.Error("expected an error for an untracked function")
	}
}
