// Package state persists the inventory database and the directory index as
// JSON documents.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/On-Jun9/ShutterFix/pkg/types"
)

// Database is the persisted inventory document: a mapping from relative
// path to record.
type Database struct {
	mu       sync.RWMutex
	filePath string
	root     string
	Records  map[string]types.PhotoRecord
	// Upgraded is set when Load converted a legacy list document.
	Upgraded bool
	// Normalized is set when Load rewrote absolute paths below the root.
	Normalized bool
}

func New(filePath, root string) *Database {
	return &Database{
		filePath: filePath,
		root:     root,
		Records:  make(map[string]types.PhotoRecord),
	}
}

func (d *Database) FilePath() string {
	return d.filePath
}

// Load reads the database at filePath. A missing file yields an empty
// database. Absolute paths under root are made relative on every load. A
// legacy list document is re-keyed by filename; both conversions are written
// back immediately.
func Load(filePath, root string) (*Database, error) {
	d := New(filePath, root)

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read database %s: %w", filePath, err)
	}

	var records []types.PhotoRecord
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("parse database %s: %w", filePath, err)
		}
		d.Upgraded = true
	} else {
		keyed := make(map[string]types.PhotoRecord)
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return nil, fmt.Errorf("parse database %s: %w", filePath, err)
		}
		for key, rec := range keyed {
			if rec.Path == "" {
				rec.Path = key
			}
			if RelativeTo(root, key) != key {
				d.Normalized = true
			}
			records = append(records, rec)
		}
	}

	for _, rec := range records {
		if rel := RelativeTo(root, rec.Path); rel != rec.Path {
			rec.Path = rel
			d.Normalized = true
		}
		d.Records[rec.Path] = rec
	}

	if d.Upgraded || d.Normalized {
		if err := d.Save(); err != nil {
			return nil, fmt.Errorf("upgrade database %s: %w", filePath, err)
		}
	}

	return d, nil
}

// Save writes the database atomically. Keys are emitted in sorted order so
// an unchanged database produces identical bytes.
func (d *Database) Save() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return writeJSON(d.filePath, d.Records)
}

// DirIndex is the persisted directory index: directory path to timestamp.
type DirIndex struct {
	mu       sync.RWMutex
	filePath string
	Entries  map[string]string
}

func NewDirIndex(filePath string) *DirIndex {
	return &DirIndex{filePath: filePath, Entries: make(map[string]string)}
}

// LoadDirIndex reads the index at filePath; a missing file yields an empty
// index.
func LoadDirIndex(filePath string) (*DirIndex, error) {
	idx := NewDirIndex(filePath)

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read directory index %s: %w", filePath, err)
	}

	if err := json.Unmarshal(data, &idx.Entries); err != nil {
		return nil, fmt.Errorf("parse directory index %s: %w", filePath, err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]string)
	}
	return idx, nil
}

func (idx *DirIndex) Save() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return writeJSON(idx.filePath, idx.Entries)
}

// RelativeTo strips root from an absolute path below it. Other paths are
// returned cleaned but otherwise unchanged.
func RelativeTo(root, path string) string {
	if root == "" || !filepath.IsAbs(path) {
		return path
	}
	cleanRoot := filepath.Clean(root)
	cleanPath := filepath.Clean(path)
	if !strings.HasPrefix(cleanPath, cleanRoot+string(filepath.Separator)) {
		return path
	}
	rel, err := filepath.Rel(cleanRoot, cleanPath)
	if err != nil {
		return path
	}
	return rel
}

func writeJSON(filePath string, v any) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filePath, err)
	}
	data = append(data, '\n')

	tmpFile := filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	if err := os.Rename(tmpFile, filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename %s: %w", filePath, err)
	}
	return nil
}
