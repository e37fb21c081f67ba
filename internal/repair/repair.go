// Package repair recovers capture timestamps of unresolved records.
package repair

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/On-Jun9/ShutterFix/internal/dirindex"
	"github.com/On-Jun9/ShutterFix/internal/inventory"
	"github.com/On-Jun9/ShutterFix/internal/metadata"
	"github.com/On-Jun9/ShutterFix/pkg/types"
)

// DefaultFilenamePattern captures year, month and day from names such as
// IMG-20230401-WA0001.jpg.
const DefaultFilenamePattern = `.*-([0-9]{4})([0-9]{2})([0-9]{2})-.*`

// CompilePattern compiles a filename pattern anchored at the start of the
// base name. The first three capture groups are year, month and day.
func CompilePattern(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("^(?:" + expr + ")")
	if err != nil {
		return nil, fmt.Errorf("invalid filename pattern %q: %w", expr, err)
	}
	if re.NumSubexp() < 3 {
		return nil, fmt.Errorf("filename pattern %q needs three capture groups, has %d", expr, re.NumSubexp())
	}
	return re, nil
}

type Engine struct {
	accessor metadata.Accessor
	pattern  *regexp.Regexp
	logger   zerolog.Logger
}

func New(accessor metadata.Accessor, pattern *regexp.Regexp, logger zerolog.Logger) *Engine {
	return &Engine{accessor: accessor, pattern: pattern, logger: logger}
}

// Result counts the outcome of one repair pass.
type Result struct {
	Processed int
	Fixed     int
	SameDir   int
	HigherDir int
	Metadata  int
	Filename  int
	Secondary int
	Skipped   int
}

// MapFromDirectoryIndex borrows the directory timestamp for records whose
// file yielded no usable timestamp. The records stay ok=false and carry the
// matching audit issue.
func (e *Engine) MapFromDirectoryIndex(ctx context.Context, inv *inventory.Inventory, idx *dirindex.Index, progress types.ProgressFunc) (Result, error) {
	var res Result
	paths := inv.Paths()
	e.logger.Info().Int("records", len(paths)).Msg("mapping records from directory index")

	for i, p := range paths {
		if err := types.Interrupted(ctx); err != nil {
			return res, err
		}
		progress.Report(i+1, len(paths), p)
		res.Processed++

		rec, _ := inv.Get(p)
		if rec.OK || !rec.Issue.Mappable() {
			continue
		}

		m, ok := idx.Lookup(dirindex.Dir(p))
		if !ok {
			e.logger.Debug().Str("file", p).Msg("directory not found in index")
			continue
		}

		rec.Timestamps = types.SameTimestamps(m.Timestamp)
		rec.HasMetadata = true
		if m.Walked {
			rec.Issue = types.MatchedHigherDir(m.Dir)
			res.HigherDir++
		} else {
			rec.Issue = types.IssueMatchedSameDir
			res.SameDir++
		}
		e.logger.Debug().Str("file", p).Str("dir", m.Dir).Str("datetime", m.Timestamp).Msg("matched directory timestamp")
		inv.Put(rec)
		res.Fixed++
	}

	e.logger.Info().Int("fixed", res.Fixed).Int("same_dir", res.SameDir).Int("higher_dir", res.HigherDir).Msg("directory mapping finished")
	return res, nil
}

// Fix applies the metadata and filename strategies and repairs invalid
// secondary fields of verified records.
func (e *Engine) Fix(ctx context.Context, inv *inventory.Inventory, progress types.ProgressFunc) (Result, error) {
	var res Result
	paths := inv.Paths()
	e.logger.Info().Int("records", len(paths)).Msg("fixing records")

	for i, p := range paths {
		if err := types.Interrupted(ctx); err != nil {
			return res, err
		}
		progress.Report(i+1, len(paths), p)
		res.Processed++

		rec, _ := inv.Get(p)
		var changed bool
		switch {
		case rec.OK:
			changed = e.fixSecondary(&rec, &res)
		case rec.Issue == types.IssueNoDatetime:
			changed = e.fixFromMetadata(inv.Root(), &rec, &res)
		case rec.Issue == types.IssueNoMetadata:
			changed = e.fixFromFilename(&rec, &res)
		}
		if changed {
			inv.Put(rec)
		}
	}

	res.Fixed = res.Metadata + res.Filename + res.Secondary
	e.logger.Info().
		Int("fixed", res.Fixed).
		Int("metadata", res.Metadata).
		Int("filename", res.Filename).
		Int("secondary", res.Secondary).
		Int("skipped", res.Skipped).
		Msg("fix finished")
	return res, nil
}

func (e *Engine) fixSecondary(rec *types.PhotoRecord, res *Result) bool {
	if rec.Timestamps == nil || !types.ValidTimestampPtr(rec.Timestamps.Captured) {
		return false
	}
	captured := *rec.Timestamps.Captured

	changed := false
	for _, field := range []**string{&rec.Timestamps.Original, &rec.Timestamps.Digitized} {
		if types.ValidTimestampPtr(*field) {
			continue
		}
		*field = types.StringPtr(captured)
		res.Secondary++
		changed = true
	}
	if changed {
		e.logger.Debug().Str("file", rec.Path).Msg("copied datetime into invalid secondary fields")
	}
	return changed
}

func (e *Engine) fixFromMetadata(root string, rec *types.PhotoRecord, res *Result) bool {
	h, err := e.accessor.Open(filepath.Join(root, rec.Path))
	if err != nil {
		e.logger.Warn().Err(err).Str("file", rec.Path).Msg("cannot read metadata")
		res.Skipped++
		return false
	}

	for _, field := range []metadata.Field{metadata.FieldDateTimeOriginal, metadata.FieldDateTimeDigitized} {
		v, ok := h.Field(field)
		if !ok {
			continue
		}
		if !types.ValidTimestamp(v) {
			e.logger.Debug().Str("file", rec.Path).Str("field", string(field)).Str("value", v).Msg("ignoring invalid metadata value")
			continue
		}
		rec.Timestamps = types.SameTimestamps(v)
		rec.Issue = types.IssueFoundInOtherMetadata
		res.Metadata++
		e.logger.Debug().Str("file", rec.Path).Str("field", string(field)).Str("datetime", v).Msg("datetime found in other metadata")
		return true
	}

	return e.fixFromFilename(rec, res)
}

func (e *Engine) fixFromFilename(rec *types.PhotoRecord, res *Result) bool {
	if e.pattern == nil {
		return false
	}
	groups := e.pattern.FindStringSubmatch(filepath.Base(rec.Path))
	if groups == nil {
		return false
	}

	date := types.NoonTimestamp(groups[1], groups[2], groups[3])
	if !types.ValidTimestamp(date) {
		e.logger.Warn().Str("file", rec.Path).Str("datetime", date).Msg("filename match is not a valid datetime, fix manually")
		res.Skipped++
		return false
	}

	rec.Timestamps = types.SameTimestamps(date)
	rec.Issue = types.IssueFoundInFilename
	res.Filename++
	e.logger.Debug().Str("file", rec.Path).Str("datetime", date).Msg("datetime found in filename")
	return true
}
