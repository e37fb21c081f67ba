// Package scanner enumerates every file below a scan root.
package scanner

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/On-Jun9/ShutterFix/pkg/types"
)

type Scanner struct {
	ignore *IgnoreMatcher
	logger zerolog.Logger
}

func New(ignorePatterns []string, logger zerolog.Logger) *Scanner {
	return &Scanner{ignore: NewIgnoreMatcher(ignorePatterns), logger: logger}
}

// Scan walks root recursively and returns all regular files with paths
// relative to root, in lexical order. Ignored directories are not descended.
// Only an unreadable root fails the walk; other unreadable entries are
// logged and skipped.
func (s *Scanner) Scan(ctx context.Context, root string) ([]types.FileEntry, error) {
	w := &walk{scanner: s, ctx: ctx, root: root}
	err := filepath.WalkDir(root, w.visit)
	return w.entries, err
}

type walk struct {
	scanner *Scanner
	ctx     context.Context
	root    string
	entries []types.FileEntry
}

func (w *walk) visit(path string, d fs.DirEntry, err error) error {
	if err != nil {
		if path == w.root {
			return err
		}
		w.scanner.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
		if d != nil && d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}

	if path == w.root {
		return nil
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return err
	}

	if w.scanner.ignore.Match(rel) {
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}

	if d.IsDir() || !d.Type().IsRegular() {
		return nil
	}

	w.entries = append(w.entries, types.FileEntry{Path: path, RelPath: rel})
	return nil
}
