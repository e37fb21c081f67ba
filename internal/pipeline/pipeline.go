// Package pipeline runs one ShutterFix operation end to end: it opens the
// stores, drives the component, decides persistence and records the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/On-Jun9/ShutterFix/internal/classify"
	"github.com/On-Jun9/ShutterFix/internal/config"
	"github.com/On-Jun9/ShutterFix/internal/csvio"
	"github.com/On-Jun9/ShutterFix/internal/dirindex"
	"github.com/On-Jun9/ShutterFix/internal/inventory"
	"github.com/On-Jun9/ShutterFix/internal/log"
	"github.com/On-Jun9/ShutterFix/internal/metadata"
	"github.com/On-Jun9/ShutterFix/internal/repair"
	"github.com/On-Jun9/ShutterFix/internal/scanner"
	"github.com/On-Jun9/ShutterFix/internal/state"
	"github.com/On-Jun9/ShutterFix/internal/writer"
	"github.com/On-Jun9/ShutterFix/pkg/types"
)

var (
	ErrDatabaseExists = errors.New("picture database already exists")
	ErrNoDatabase     = errors.New("no picture database found, run scan first")
)

type Pipeline struct {
	cfg              *config.Config
	accessor         metadata.Accessor
	classifier       *classify.Classifier
	scanner          *scanner.Scanner
	pattern          *regexp.Regexp
	logger           *log.Logger
	zl               zerolog.Logger
	history          *config.HistoryManager
	progressCallback ProgressCallback
}

// New opens the logger and run history for a validated configuration.
func New(cfg *config.Config) (*Pipeline, error) {
	logger, err := log.New(log.Options{FilePath: cfg.LogFile, JSON: cfg.LogJSON, Verbose: cfg.Verbose})
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	history, err := config.NewHistoryManager()
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to create history manager: %w", err)
	}

	p, err := NewWithAccessor(cfg, metadata.NewEXIFAccessor(), logger, history)
	if err != nil {
		logger.Close()
		return nil, err
	}
	return p, nil
}

// NewWithAccessor assembles a pipeline from already opened collaborators.
func NewWithAccessor(cfg *config.Config, accessor metadata.Accessor, logger *log.Logger, history *config.HistoryManager) (*Pipeline, error) {
	pattern, err := repair.CompilePattern(cfg.FilenamePattern)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:        cfg,
		accessor:   accessor,
		classifier: classify.New(accessor, cfg.Extensions),
		scanner:    scanner.New(cfg.Ignore, logger.Zerolog()),
		pattern:    pattern,
		logger:     logger,
		zl:         logger.Zerolog(),
		history:    history,
	}, nil
}

func (p *Pipeline) SetProgressCallback(cb ProgressCallback) {
	p.progressCallback = cb
}

func (p *Pipeline) Config() *config.Config {
	return p.cfg
}

// Logger returns the structured logger shared with the components.
func (p *Pipeline) Logger() zerolog.Logger {
	return p.zl
}

// History returns the run history store shared by every operation.
func (p *Pipeline) History() *config.HistoryManager {
	return p.history
}

func (p *Pipeline) Close() error {
	return p.logger.Close()
}

func (p *Pipeline) databaseExists() (bool, error) {
	info, err := os.Stat(p.cfg.Database)
	if err == nil {
		if info.IsDir() {
			return false, fmt.Errorf("picture database %s is a directory", p.cfg.Database)
		}
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// LoadInventory opens the persisted database. It fails with ErrNoDatabase
// when no scan has been run yet.
func (p *Pipeline) LoadInventory() (*inventory.Inventory, error) {
	exists, err := p.databaseExists()
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNoDatabase, p.cfg.Database)
	}
	return inventory.Load(p.cfg.Root, p.cfg.Database, p.classifier, p.zl)
}

// run wraps one mutating operation with timing, the console summary, run
// history and the final progress update.
func (p *Pipeline) run(op string, fn func(summary *types.RunSummary) error) (*types.RunSummary, error) {
	summary := &types.RunSummary{Operation: op, StartTime: time.Now()}
	p.zl.Info().Str("operation", op).Str("root", p.cfg.Root).Str("database", p.cfg.Database).Msg("starting")
	p.notify(ProgressUpdate{Type: UpdateStatus, Operation: op, Message: op + " started"})

	err := fn(summary)

	summary.EndTime = time.Now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime)
	summary.Interrupted = errors.Is(err, types.ErrInterrupted)

	p.logger.Summary(*summary)
	p.recordHistory(*summary, err)

	if err != nil {
		p.notify(ProgressUpdate{Type: UpdateError, Operation: op, Summary: summary, Error: err.Error()})
		return summary, err
	}
	p.notify(ProgressUpdate{Type: UpdateComplete, Operation: op, Summary: summary})
	return summary, nil
}

func (p *Pipeline) recordHistory(summary types.RunSummary, runErr error) {
	if p.history == nil {
		return
	}

	entry := types.RunHistoryEntry{
		Root:      p.cfg.Root,
		Summary:   summary,
		Status:    types.RunStatusSuccess,
		CreatedAt: summary.StartTime,
	}
	switch {
	case summary.Interrupted:
		entry.Status = types.RunStatusInterrupted
		entry.Error = runErr.Error()
	case runErr != nil:
		entry.Status = types.RunStatusFailed
		entry.Error = runErr.Error()
	case summary.Failed > 0:
		entry.Status = types.RunStatusFailed
	}

	// A history failure never fails the operation itself.
	if err := p.history.Add(entry); err != nil {
		p.zl.Error().Err(err).Msg("failed to save run history")
	}
}

// persist saves inv when the operation changed it and completed. An
// incomplete operation leaves the stored database untouched.
func (p *Pipeline) persist(inv *inventory.Inventory, summary *types.RunSummary, changed bool, opErr error) error {
	if opErr != nil {
		if changed {
			p.zl.Warn().Err(opErr).Msg("operation incomplete, database not saved")
		}
		return opErr
	}
	if !changed {
		p.zl.Info().Msg("nothing changed, database not saved")
		return nil
	}
	if err := inv.Save(); err != nil {
		return fmt.Errorf("save database %s: %w", p.cfg.Database, err)
	}
	summary.Persisted = true
	return nil
}

type ScanOptions struct {
	Rebuild bool
	Force   bool
}

// Scan creates or refreshes the database and the directory index. An
// existing database is only touched with Force.
func (p *Pipeline) Scan(ctx context.Context, opts ScanOptions) (*types.RunSummary, error) {
	return p.run("scan", func(s *types.RunSummary) error {
		exists, err := p.databaseExists()
		if err != nil {
			return err
		}
		if exists {
			p.zl.Warn().Str("database", p.cfg.Database).Msg("database already exists")
			if !opts.Force {
				return fmt.Errorf("%w: %s (use --force)", ErrDatabaseExists, p.cfg.Database)
			}
		}

		inv, err := inventory.Load(p.cfg.Root, p.cfg.Database, p.classifier, p.zl)
		if err != nil {
			return err
		}

		res, err := inv.Scan(ctx, p.scanner, inventory.ScanOptions{Rebuild: opts.Rebuild, Progress: p.progress("scan")})
		s.Processed = res.Files
		s.Probed = res.Probed
		s.Pruned = res.Pruned
		s.Changed = res.Added + res.Changed + res.Pruned

		if err != nil && res.PartialPrune && p.cfg.SavePartialPrune && errors.Is(err, types.ErrInterrupted) {
			p.zl.Warn().Int("pruned", res.Pruned).Msg("interrupted while pruning, saving partial result")
			if saveErr := inv.Save(); saveErr != nil {
				return fmt.Errorf("save database %s: %w", p.cfg.Database, saveErr)
			}
			s.Persisted = true
			return err
		}

		if err := p.persist(inv, s, res.Modified() || !exists, err); err != nil {
			return err
		}

		_, err = p.buildDirIndex(ctx, inv, opts.Rebuild)
		return err
	})
}

func (p *Pipeline) buildDirIndex(ctx context.Context, inv *inventory.Inventory, rebuild bool) (*dirindex.Index, error) {
	var idx *dirindex.Index
	if rebuild {
		idx = dirindex.New(state.NewDirIndex(p.cfg.DirIndex), p.zl)
	} else {
		var err error
		if idx, err = dirindex.Load(p.cfg.DirIndex, p.zl); err != nil {
			return nil, err
		}
	}

	stored, err := idx.Build(ctx, inv, p.progress("index"))
	if err != nil {
		return nil, err
	}
	if stored > 0 || rebuild {
		if err := idx.Save(); err != nil {
			return nil, fmt.Errorf("save directory index %s: %w", p.cfg.DirIndex, err)
		}
	}
	return idx, nil
}

type ListOptions struct {
	Problems bool
	Filter   []string
	Out      string
}

// List renders the database, or its problems, as a table on w, or as CSV
// into opts.Out. It returns the number of records listed.
func (p *Pipeline) List(w io.Writer, opts ListOptions) (int, error) {
	preds, err := inventory.ParseFilter(opts.Filter)
	if err != nil {
		return 0, err
	}

	inv, err := p.LoadInventory()
	if err != nil {
		return 0, err
	}
	if opts.Problems {
		inv = inv.Problems()
	}

	if opts.Out != "" {
		n, err := csvio.ExportFile(opts.Out, inv, preds)
		if err != nil {
			return n, fmt.Errorf("export %s: %w", opts.Out, err)
		}
		p.zl.Info().Int("rows", n).Str("file", opts.Out).Msg("csv written")
		return n, nil
	}

	view := inv.Filter(preds)
	return view.Len(), view.WriteTable(w)
}

func (p *Pipeline) Remove(ctx context.Context, name, pattern string) (*types.RunSummary, error) {
	return p.run("remove", func(s *types.RunSummary) error {
		inv, err := p.LoadInventory()
		if err != nil {
			return err
		}
		s.Processed = inv.Len()

		removed, err := inv.Remove(ctx, name, pattern, p.progress("remove"))
		s.Changed = len(removed)
		p.zl.Info().Int("removed", len(removed)).Msg("records removed")
		return p.persist(inv, s, len(removed) > 0, err)
	})
}

// Add classifies one file into the database. path may be absolute below
// the root or relative to it.
func (p *Pipeline) Add(path string, force bool) (*types.RunSummary, error) {
	return p.run("add", func(s *types.RunSummary) error {
		inv, err := p.LoadInventory()
		if err != nil {
			return err
		}

		full := filepath.Join(p.cfg.Root, state.RelativeTo(p.cfg.Root, path))
		if _, err := os.Stat(full); err != nil {
			return fmt.Errorf("add %s: %w", path, err)
		}

		s.Processed = 1
		rec, added := inv.Add(path, force)
		if !added {
			s.Skipped = 1
			return nil
		}
		s.Probed = 1
		s.Changed = 1
		p.zl.Info().Str("file", rec.Path).Str("status", string(rec.Status())).Msg("record added")
		return p.persist(inv, s, true, nil)
	})
}

// Map fills unresolved records from the directory index, refreshing the
// index from the database first.
func (p *Pipeline) Map(ctx context.Context) (*types.RunSummary, error) {
	return p.run("map", func(s *types.RunSummary) error {
		inv, err := p.LoadInventory()
		if err != nil {
			return err
		}

		idx, err := p.buildDirIndex(ctx, inv, false)
		if err != nil {
			return err
		}

		engine := repair.New(p.accessor, p.pattern, p.zl)
		res, err := engine.MapFromDirectoryIndex(ctx, inv, idx, p.progress("map"))
		s.Processed = res.Processed
		s.Fixed = res.Fixed
		s.Changed = res.Fixed
		return p.persist(inv, s, res.Fixed > 0, err)
	})
}

func (p *Pipeline) Fix(ctx context.Context) (*types.RunSummary, error) {
	return p.run("fix", func(s *types.RunSummary) error {
		inv, err := p.LoadInventory()
		if err != nil {
			return err
		}

		engine := repair.New(p.accessor, p.pattern, p.zl)
		res, err := engine.Fix(ctx, inv, p.progress("fix"))
		s.Processed = res.Processed
		s.Fixed = res.Fixed
		s.Skipped = res.Skipped
		s.Changed = res.Fixed
		return p.persist(inv, s, res.Fixed > 0, err)
	})
}

// Update merges manual fixes from the CSV file at input.
func (p *Pipeline) Update(ctx context.Context, input string, opts csvio.UpdateOptions) (*types.RunSummary, error) {
	return p.run("update", func(s *types.RunSummary) error {
		inv, err := p.LoadInventory()
		if err != nil {
			return err
		}

		if opts.Progress == nil {
			opts.Progress = p.progress("update")
		}
		res, err := csvio.NewImporter(p.zl).UpdateFromFile(ctx, inv, input, opts)
		s.Processed = res.Rows
		s.Skipped = res.Skipped
		s.Changed = res.Applied
		return p.persist(inv, s, res.Applied > 0, err)
	})
}

// Write updates the files of recovered problem records. Without commit it
// only counts the files that would change.
func (p *Pipeline) Write(ctx context.Context, commit bool) (*types.RunSummary, error) {
	return p.run("write", func(s *types.RunSummary) error {
		inv, err := p.LoadInventory()
		if err != nil {
			return err
		}

		w := writer.New(p.accessor, p.cfg.Root, p.zl)
		res, err := w.WriteFixes(ctx, inv, writer.Options{
			Commit:        commit,
			PreserveMtime: p.cfg.PreserveMtime,
			Verify:        p.cfg.VerifyWrites,
			Progress:      p.progress("write"),
		})
		s.Processed = res.Processed
		s.Changed = res.Changed
		s.Written = res.Written
		s.Failed = res.Failed
		s.Skipped = res.NoTimestamp + res.Missing + res.Unreadable + res.UpToDate
		return err
	})
}

type FileInfo struct {
	Path        string                    `json:"path"`
	HasMetadata bool                      `json:"has_metadata"`
	Fields      map[metadata.Field]string `json:"fields"`
}

// Info reads the timestamp fields of one file. Relative paths that do not
// exist in the working directory are resolved against the root.
func (p *Pipeline) Info(path string) (*FileInfo, error) {
	if !filepath.IsAbs(path) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = filepath.Join(p.cfg.Root, path)
		}
	}

	h, err := p.accessor.Open(path)
	if err != nil {
		return nil, err
	}

	info := &FileInfo{Path: path, HasMetadata: h.HasMetadata(), Fields: make(map[metadata.Field]string)}
	for _, field := range metadata.TimestampFields {
		if v, ok := h.Field(field); ok {
			info.Fields[field] = v
		}
	}
	return info, nil
}
