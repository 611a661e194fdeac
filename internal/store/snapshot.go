// Package store saves and loads whole graphs: JSON snapshot files,
// optionally zstd-compressed, and a SQLite database.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/phobologic/repograph/internal/graph"
	"github.com/phobologic/repograph/internal/repograph"
)

// CompressedExt marks snapshot paths that are written zstd-compressed.
const CompressedExt = ".zst"

// Snapshot is a saved repository graph.
type Snapshot struct {
	ID        string                  `json:"id"`
	CreatedAt time.Time               `json:"created_at"`
	Root      string                  `json:"root"`
	Graph     *graph.Graph            `json:"graph"`
	Modules   []repograph.ModuleCount `json:"modules,omitempty"`
}

// NewSnapshot captures repo under a fresh id.
func NewSnapshot(repo *repograph.Repository) *Snapshot {
	return &Snapshot{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Root:      repo.Root,
		Graph:     repo.Graph,
		Modules:   repo.ModuleCounts,
	}
}

// SaveFile writes s as JSON to path, compressed when path ends in
// CompressedExt. The file is replaced atomically.
func SaveFile(path string, s *Snapshot) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	var w io.Writer = bw
	var enc *zstd.Encoder
	if strings.HasSuffix(path, CompressedExt) {
		enc, err = zstd.NewWriter(bw)
		if err != nil {
			return fmt.Errorf("creating compressor: %w", err)
		}
		w = enc
	}

	if err = json.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if enc != nil {
		if err = enc.Close(); err != nil {
			return fmt.Errorf("compressing snapshot: %w", err)
		}
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// LoadFile reads a snapshot written by SaveFile.
func LoadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, CompressedExt) {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating decompressor: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if s.Graph == nil {
		return nil, errors.New("decoding snapshot: missing graph")
	}
	return &s, nil
}
