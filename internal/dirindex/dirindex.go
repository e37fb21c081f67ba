// Package dirindex keeps one representative capture timestamp per directory.
package dirindex

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/On-Jun9/ShutterFix/internal/inventory"
	"github.com/On-Jun9/ShutterFix/internal/state"
	"github.com/On-Jun9/ShutterFix/pkg/types"
)

type Index struct {
	store  *state.DirIndex
	logger zerolog.Logger
}

func New(store *state.DirIndex, logger zerolog.Logger) *Index {
	return &Index{store: store, logger: logger}
}

// Load opens the persisted index at filePath; a missing file is empty.
func Load(filePath string, logger zerolog.Logger) (*Index, error) {
	store, err := state.LoadDirIndex(filePath)
	if err != nil {
		return nil, err
	}
	return New(store, logger), nil
}

func (x *Index) Save() error {
	x.logger.Info().Int("directories", len(x.store.Entries)).Msg("saving directory index")
	return x.store.Save()
}

func (x *Index) Len() int {
	return len(x.store.Entries)
}

// Entries returns the raw directory to timestamp mapping.
func (x *Index) Entries() map[string]string {
	return x.store.Entries
}

// Dir returns the directory key of a relative record path. Files directly
// below the root belong to the empty key.
func Dir(path string) string {
	d := filepath.Dir(path)
	if d == "." || d == string(filepath.Separator) {
		return ""
	}
	return d
}

// Build samples one verified record per directory. Records are visited in
// path order, so the lexicographically smallest verified path of a directory
// is its representative. Existing valid entries are kept; entries whose
// stored timestamp no longer validates are replaced. It returns the number
// of entries written.
func (x *Index) Build(ctx context.Context, inv *inventory.Inventory, progress types.ProgressFunc) (int, error) {
	records := inv.Records()
	x.logger.Info().Int("records", len(records)).Msg("indexing directories")

	stored := 0
	for i, rec := range records {
		if err := types.Interrupted(ctx); err != nil {
			return stored, err
		}
		progress.Report(i+1, len(records), rec.Path)

		dir := Dir(rec.Path)
		if current, ok := x.store.Entries[dir]; ok && types.ValidTimestamp(current) {
			continue
		}
		if !rec.OK || !rec.HasMetadata {
			continue
		}
		ts, ok := rec.Captured()
		if !ok || !types.ValidTimestamp(ts) {
			continue
		}

		x.logger.Debug().Str("dir", dir).Str("datetime", ts).Msg("indexed directory")
		x.store.Entries[dir] = ts
		stored++
	}

	x.logger.Info().Int("stored", stored).Int("directories", len(x.store.Entries)).Msg("directory index built")
	return stored, nil
}

// Get returns the valid entry stored for dir.
func (x *Index) Get(dir string) (string, bool) {
	ts, ok := x.store.Entries[dir]
	if !ok || !types.ValidTimestamp(ts) {
		return "", false
	}
	return ts, true
}

// Match is the result of a successful lookup.
type Match struct {
	Timestamp string
	// Dir is the directory whose entry was used.
	Dir string
	// Walked is set when Dir is an ancestor of the requested directory.
	Walked bool
}

// Lookup returns the entry of dir, or else of its nearest indexed ancestor.
// The walk stops before the empty root key; the root entry is only used for
// files directly below the root.
func (x *Index) Lookup(dir string) (Match, bool) {
	if ts, ok := x.Get(dir); ok {
		return Match{Timestamp: ts, Dir: dir}, true
	}

	for parent := Dir(dir); parent != ""; parent = Dir(parent) {
		if ts, ok := x.Get(parent); ok {
			return Match{Timestamp: ts, Dir: parent, Walked: true}, true
		}
	}
	return Match{}, false
}
