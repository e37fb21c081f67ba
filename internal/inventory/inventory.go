// Package inventory holds the record of every known file below a scan root.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/rs/zerolog"

	"github.com/On-Jun9/ShutterFix/internal/classify"
	"github.com/On-Jun9/ShutterFix/internal/scanner"
	"github.com/On-Jun9/ShutterFix/internal/state"
	"github.com/On-Jun9/ShutterFix/pkg/types"
)

// ErrNotPersistable is returned when saving a sub-inventory produced by
// Filter or Problems.
var ErrNotPersistable = errors.New("inventory view cannot be persisted")

type Inventory struct {
	root       string
	db         *state.Database
	records    map[string]types.PhotoRecord
	classifier *classify.Classifier
	logger     zerolog.Logger
}

// New wraps db. A nil db produces an in-memory inventory that cannot be saved.
func New(root string, db *state.Database, classifier *classify.Classifier, logger zerolog.Logger) *Inventory {
	records := make(map[string]types.PhotoRecord)
	if db != nil {
		records = db.Records
	}
	return &Inventory{
		root:       root,
		db:         db,
		records:    records,
		classifier: classifier,
		logger:     logger,
	}
}

// Load opens the database at dbFile for root.
func Load(root, dbFile string, classifier *classify.Classifier, logger zerolog.Logger) (*Inventory, error) {
	db, err := state.Load(dbFile, root)
	if err != nil {
		return nil, err
	}
	if db.Upgraded || db.Normalized {
		logger.Info().
			Str("database", dbFile).
			Int("records", len(db.Records)).
			Bool("legacy_list", db.Upgraded).
			Msg("converted database on load")
	}
	return New(root, db, classifier, logger), nil
}

func (inv *Inventory) Root() string {
	return inv.root
}

func (inv *Inventory) Len() int {
	return len(inv.records)
}

func (inv *Inventory) Save() error {
	if inv.db == nil {
		return ErrNotPersistable
	}
	inv.logger.Info().Int("records", len(inv.records)).Str("database", inv.db.FilePath()).Msg("saving database")
	return inv.db.Save()
}

func (inv *Inventory) Get(path string) (types.PhotoRecord, bool) {
	rec, ok := inv.records[path]
	return rec, ok
}

// Put stores rec under its path, replacing any previous record.
func (inv *Inventory) Put(rec types.PhotoRecord) {
	inv.records[rec.Path] = rec
}

// Paths returns all keys in lexicographic order.
func (inv *Inventory) Paths() []string {
	paths := make([]string, 0, len(inv.records))
	for p := range inv.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Records returns copies of all records in path order.
func (inv *Inventory) Records() []types.PhotoRecord {
	paths := inv.Paths()
	out := make([]types.PhotoRecord, 0, len(paths))
	for _, p := range paths {
		out = append(out, inv.records[p].Clone())
	}
	return out
}

// ScanOptions controls Scan.
type ScanOptions struct {
	Rebuild  bool
	Progress types.ProgressFunc
}

// ScanResult counts what a scan did.
type ScanResult struct {
	Files   int
	Probed  int
	Added   int
	Changed int
	Pruned  int
	// PartialPrune is set when the scan was interrupted while pruning, so the
	// records pruned so far may be persisted by policy.
	PartialPrune bool
}

// Modified reports whether the scan changed at least one record.
func (r ScanResult) Modified() bool {
	return r.Added > 0 || r.Changed > 0 || r.Pruned > 0
}

// Scan reconciles the inventory with the files below the root. New files
// and every record that is not ok, except NO PICTURE FILE, are classified;
// verified records are re-probed only when their stored timestamp no longer
// validates. A re-probe replaces a repair that was never written back. Records of vanished files
// are pruned after all files were visited.
func (inv *Inventory) Scan(ctx context.Context, sc *scanner.Scanner, opts ScanOptions) (ScanResult, error) {
	var res ScanResult

	files, err := sc.Scan(ctx, inv.root)
	if err != nil {
		if ierr := types.Interrupted(ctx); ierr != nil {
			return res, ierr
		}
		return res, fmt.Errorf("scan %s: %w", inv.root, err)
	}
	res.Files = len(files)

	if opts.Rebuild {
		inv.logger.Info().Int("records", len(inv.records)).Msg("discarding existing database")
		for p := range inv.records {
			delete(inv.records, p)
		}
	}

	inv.logger.Info().Int("files", len(files)).Str("root", inv.root).Msg("scanning files")

	seen := make(map[string]bool, len(files))
	for i, f := range files {
		if err := types.Interrupted(ctx); err != nil {
			return res, err
		}
		opts.Progress.Report(i+1, len(files), f.RelPath)
		seen[f.RelPath] = true

		old, exists := inv.records[f.RelPath]
		if exists && !needsProbe(old) {
			continue
		}

		rec := inv.classifier.Classify(inv.root, f.RelPath)
		res.Probed++
		inv.logger.Debug().Str("file", rec.Path).Bool("ok", rec.OK).Str("issue", string(rec.Issue)).Msg("classified")

		switch {
		case !exists:
			res.Added++
		case !old.Equal(rec):
			res.Changed++
			if old.Issue.Recovered() && !rec.OK {
				inv.logger.Warn().Str("file", rec.Path).Str("issue", string(old.Issue)).Msg("unwritten repair replaced by re-probe")
			}
		}
		inv.records[f.RelPath] = rec
	}

	for _, p := range inv.Paths() {
		if seen[p] {
			continue
		}
		if err := types.Interrupted(ctx); err != nil {
			res.PartialPrune = true
			return res, err
		}
		inv.logger.Debug().Str("file", p).Msg("pruning vanished file")
		delete(inv.records, p)
		res.Pruned++
	}

	inv.logger.Info().
		Int("probed", res.Probed).
		Int("added", res.Added).
		Int("changed", res.Changed).
		Int("pruned", res.Pruned).
		Msg("scan finished")
	return res, nil
}

func needsProbe(rec types.PhotoRecord) bool {
	if rec.Issue == types.IssueNoPictureFile {
		return false
	}
	if rec.OK {
		return !types.ValidTimestampPtr(capturedPtr(rec))
	}
	return true
}

func capturedPtr(rec types.PhotoRecord) *string {
	if rec.Timestamps == nil {
		return nil
	}
	return rec.Timestamps.Captured
}

// Problems returns an unpersistable inventory of the records with ok=false.
func (inv *Inventory) Problems() *Inventory {
	sub := inv.view()
	for p, rec := range inv.records {
		if !rec.OK {
			sub.records[p] = rec.Clone()
		}
	}
	return sub
}

// Filter returns an unpersistable inventory of the records matching every
// predicate.
func (inv *Inventory) Filter(preds []Predicate) *Inventory {
	sub := inv.view()
	for p, rec := range inv.records {
		if matchAll(rec, preds) {
			sub.records[p] = rec.Clone()
		}
	}
	inv.logger.Debug().Int("filters", len(preds)).Int("matched", len(sub.records)).Msg("filtered records")
	return sub
}

func (inv *Inventory) view() *Inventory {
	return New(inv.root, nil, inv.classifier, inv.logger)
}

// Remove deletes records selected either by base name or by a regular
// expression anchored at the start of the relative path. Exactly one
// selector must be set. It returns the removed paths.
func (inv *Inventory) Remove(ctx context.Context, name, pattern string, progress types.ProgressFunc) ([]string, error) {
	if (name == "") == (pattern == "") {
		return nil, errors.New("remove needs exactly one of name or pattern")
	}

	var re *regexp.Regexp
	if pattern != "" {
		var err error
		re, err = regexp.Compile("^(?:" + pattern + ")")
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}

	paths := inv.Paths()
	var removed []string
	for i, p := range paths {
		if err := types.Interrupted(ctx); err != nil {
			return removed, err
		}
		progress.Report(i+1, len(paths), p)

		var match bool
		if re != nil {
			match = re.MatchString(p)
		} else {
			match = filepath.Base(p) == name
		}
		if match {
			inv.logger.Debug().Str("file", p).Msg("removing record")
			delete(inv.records, p)
			removed = append(removed, p)
		}
	}
	return removed, nil
}

// Add classifies path and inserts its record. An existing record is only
// replaced when force is set. Absolute paths below the root are accepted.
func (inv *Inventory) Add(path string, force bool) (types.PhotoRecord, bool) {
	rel := state.RelativeTo(inv.root, path)
	if old, exists := inv.records[rel]; exists && !force {
		inv.logger.Warn().Str("file", rel).Msg("already in database, use --force to overwrite")
		return old, false
	}

	rec := inv.classifier.Classify(inv.root, rel)
	inv.logger.Info().Str("file", rel).Str("issue", string(rec.Issue)).Msg("adding to database")
	inv.records[rel] = rec
	return rec, true
}

// WriteTable renders the records as a fixed-width table.
func (inv *Inventory) WriteTable(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%-40s%-6s%-20s%-6s%-30s\n\n", "FILENAME", "EXIF", "DATETIME", "OK", "ISSUE"); err != nil {
		return err
	}
	for _, rec := range inv.Records() {
		captured := "None"
		if v, ok := rec.Captured(); ok {
			captured = v
		}
		issue := "None"
		if rec.Issue != types.IssueNone {
			issue = string(rec.Issue)
		}
		if _, err := fmt.Fprintf(w, "%-40s%-6s%-20s%-6s%-30s\n",
			rec.Path, FormatBool(rec.HasMetadata), captured, FormatBool(rec.OK), issue); err != nil {
			return err
		}
	}
	return nil
}

// Summary counts records per status and per issue.
func (inv *Inventory) Summary() Summary {
	s := Summary{
		Total:    len(inv.records),
		ByStatus: make(map[types.Status]int),
		ByIssue:  make(map[types.Issue]int),
	}
	for _, rec := range inv.records {
		s.ByStatus[rec.Status()]++
		if rec.Issue != types.IssueNone {
			s.ByIssue[rec.Issue]++
		}
	}
	return s
}

// Summary is the per-status and per-issue record count of an inventory.
type Summary struct {
	Total    int                  `json:"total"`
	ByStatus map[types.Status]int `json:"by_status"`
	ByIssue  map[types.Issue]int  `json:"by_issue"`
}

// FormatBool renders booleans the way tables and CSV files spell them.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
