package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/phobologic/repograph/internal/graph"
	"github.com/phobologic/repograph/internal/model"
)

// ErrGraphNotFound is returned by LoadGraph for an unknown name.
var ErrGraphNotFound = errors.New("graph not found")

const schema = `
	CREATE TABLE IF NOT EXISTS graphs (
		name TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS nodes (
		graph TEXT NOT NULL,
		ord INTEGER NOT NULL,
		id TEXT NOT NULL,
		type TEXT NOT NULL,
		file_path TEXT,
		size TEXT,
		author TEXT,
		date TEXT,
		message TEXT,
		modification_count INTEGER DEFAULT 0,
		PRIMARY KEY (graph, id)
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(graph, file_path);

	CREATE TABLE IF NOT EXISTS edges (
		graph TEXT NOT NULL,
		ord INTEGER NOT NULL,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		type TEXT NOT NULL,
		weight INTEGER DEFAULT 0,
		PRIMARY KEY (graph, source, target, type)
	);

	CREATE TABLE IF NOT EXISTS records (
		file TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		module TEXT NOT NULL,
		parent TEXT,
		signature TEXT,
		docstring TEXT,
		code TEXT NOT NULL,
		line INTEGER DEFAULT 0,
		PRIMARY KEY (file, kind, name)
	);
	CREATE INDEX IF NOT EXISTS idx_records_module ON records(module);
`

// SQLite stores graphs and retrieval records in a SQLite database.
type SQLite struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SaveGraph stores g under name, replacing any graph saved under the same
// name, and returns the id of the saved version.
func (s *SQLite) SaveGraph(ctx context.Context, name string, g *graph.Graph) (string, error) {
	id := uuid.New().String()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"nodes", "edges"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE graph = ?", name); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO graphs (name, id, saved_at) VALUES (?, ?, ?)`,
			name, id, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("saving graph: %w", err)
		}

		nodeStmt, err := tx.PrepareContext(ctx, `INSERT INTO nodes
			(graph, ord, id, type, file_path, size, author, date, message, modification_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer nodeStmt.Close()
		for i, n := range g.Nodes() {
			if _, err := nodeStmt.ExecContext(ctx, name, i, n.ID, string(n.Type), n.FilePath,
				string(n.Size), n.Author, n.Date, n.Message, n.ModificationCount); err != nil {
				return fmt.Errorf("saving node %s: %w", n.ID, err)
			}
		}

		edgeStmt, err := tx.PrepareContext(ctx, `INSERT INTO edges
			(graph, ord, source, target, type, weight) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer edgeStmt.Close()
		for i, e := range g.Edges() {
			if _, err := edgeStmt.ExecContext(ctx, name, i, e.Source, e.Target, string(e.Type), e.Weight); err != nil {
				return fmt.Errorf("saving edge %s -> %s: %w", e.Source, e.Target, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// LoadGraph reads the graph saved under name.
func (s *SQLite) LoadGraph(ctx context.Context, name string) (*graph.Graph, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM graphs WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading graph: %w", err)
	}

	var v graph.View
	rows, err := s.db.QueryContext(ctx, `SELECT id, type, file_path, size, author, date, message, modification_count
		FROM nodes WHERE graph = ? ORDER BY ord`, name)
	if err != nil {
		return nil, fmt.Errorf("loading nodes: %w", err)
	}
	for rows.Next() {
		var n graph.Node
		var typ, filePath, size, author, date, message sql.NullString
		if err := rows.Scan(&n.ID, &typ, &filePath, &size, &author, &date, &message, &n.ModificationCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		n.Type = model.NodeType(typ.String)
		n.FilePath = filePath.String
		n.Size = model.Size(size.String)
		n.Author = author.String
		n.Date = date.String
		n.Message = message.String
		v.Nodes = append(v.Nodes, n)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading nodes: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT source, target, type, weight
		FROM edges WHERE graph = ? ORDER BY ord`, name)
	if err != nil {
		return nil, fmt.Errorf("loading edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e graph.Edge
		var typ string
		if err := rows.Scan(&e.Source, &e.Target, &typ, &e.Weight); err != nil {
			return nil, fmt.Errorf("scanning edge: %w", err)
		}
		e.Type = model.EdgeType(typ)
		v.Edges = append(v.Edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading edges: %w", err)
	}
	return graph.FromView(v), nil
}

// SaveRecords upserts retrieval records keyed by file, kind and name.
func (s *SQLite) SaveRecords(ctx context.Context, recs []model.Record) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO records
			(file, kind, name, module, parent, signature, docstring, code, line)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range recs {
			if _, err := stmt.ExecContext(ctx, r.File, string(r.Kind), r.Name, r.Module,
				r.Parent, r.Signature, r.Docstring, r.Code, r.Line); err != nil {
				return fmt.Errorf("saving record %s: %w", r.Name, err)
			}
		}
		return nil
	})
}

// Records returns the records of a module ordered by file and line.
func (s *SQLite) Records(ctx context.Context, module string) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file, kind, name, module, parent, signature, docstring, code, line
		FROM records WHERE module = ? ORDER BY file, line, name`, module)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var r model.Record
		var kind string
		var parent, signature, docstring sql.NullString
		if err := rows.Scan(&r.File, &kind, &r.Name, &r.Module, &parent, &signature, &docstring, &r.Code, &r.Line); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.Kind = model.Kind(kind)
		r.Parent = parent.String
		r.Signature = signature.String
		r.Docstring = docstring.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}
