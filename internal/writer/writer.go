// Package writer materializes recovered timestamps into the image files.
package writer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/On-Jun9/ShutterFix/internal/inventory"
	"github.com/On-Jun9/ShutterFix/internal/metadata"
	"github.com/On-Jun9/ShutterFix/pkg/types"
)

// ErrCorruptTimestamp aborts a write when the database holds a timestamp
// that does not validate.
var ErrCorruptTimestamp = errors.New("corrupt timestamp in database")

type Options struct {
	// Commit rewrites files; without it the run only counts changes.
	Commit        bool
	PreserveMtime bool
	Verify        bool
	Progress      types.ProgressFunc
}

// Result counts the outcome of a write run. Changed counts files whose
// metadata differs from the database, whether or not they were written.
type Result struct {
	Processed   int
	NoTimestamp int
	Missing     int
	Unreadable  int
	UpToDate    int
	Changed     int
	Written     int
	Verified    int
	Failed      int
}

type Writer struct {
	accessor metadata.Accessor
	verifier *Verifier
	root     string
	logger   zerolog.Logger
}

func New(accessor metadata.Accessor, root string, logger zerolog.Logger) *Writer {
	return &Writer{
		accessor: accessor,
		verifier: NewVerifier(accessor),
		root:     root,
		logger:   logger,
	}
}

// WriteFixes visits the records with ok=false that carry a recovered
// timestamp and updates the files whose primary field differs from it.
func (w *Writer) WriteFixes(ctx context.Context, inv *inventory.Inventory, opts Options) (Result, error) {
	var res Result
	records := inv.Problems().Records()

	if !opts.Commit {
		w.logger.Warn().Msg("dry run, not writing files; use --commit")
	}
	w.logger.Info().Int("records", len(records)).Msg("processing files for update")

	for i, rec := range records {
		if err := types.Interrupted(ctx); err != nil {
			return res, err
		}
		opts.Progress.Report(i+1, len(records), rec.Path)
		res.Processed++

		target, ok := rec.Captured()
		if !ok {
			w.logger.Debug().Str("file", rec.Path).Msg("no datetime in database")
			res.NoTimestamp++
			continue
		}
		if !types.ValidTimestamp(target) {
			return res, fmt.Errorf("%w: %s has %q", ErrCorruptTimestamp, rec.Path, target)
		}

		path := filepath.Join(w.root, rec.Path)
		logger := w.logger.With().Str("file", path).Logger()

		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			logger.Warn().Msg("picture in database not on filesystem")
			res.Missing++
			continue
		}

		h, err := w.accessor.Open(path)
		if err != nil {
			logger.Error().Err(err).Msg("error reading current file")
			res.Unreadable++
			continue
		}

		if current, ok := h.Field(metadata.FieldDateTime); ok && current == target {
			logger.Debug().Msg("already on correct timestamp")
			res.UpToDate++
			continue
		}
		res.Changed++

		if !opts.Commit {
			logger.Debug().Str("datetime", target).Msg("would update")
			continue
		}

		fields := targetFields(rec, target)
		data, err := h.WriteFields(fields)
		if err != nil {
			logger.Error().Err(err).Msg("failed to encode metadata")
			res.Failed++
			continue
		}
		if err := replaceFile(path, data, opts.PreserveMtime); err != nil {
			logger.Error().Err(err).Msg("failed to replace file")
			res.Failed++
			continue
		}
		res.Written++
		logger.Debug().Str("datetime", target).Msg("file written")

		if opts.Verify {
			if err := w.verifier.Verify(path, int64(len(data)), fields); err != nil {
				logger.Error().Err(err).Msg("verification failed")
				res.Failed++
				continue
			}
			res.Verified++
		}
	}

	w.logger.Info().
		Int("processed", res.Processed).
		Int("changed", res.Changed).
		Int("written", res.Written).
		Int("missing", res.Missing).
		Msg("write finished")
	return res, nil
}

// targetFields sets all three fields. Secondary values stored in the record
// are kept when valid, otherwise the primary value is used.
func targetFields(rec types.PhotoRecord, target string) map[metadata.Field]string {
	fields := map[metadata.Field]string{
		metadata.FieldDateTime:          target,
		metadata.FieldDateTimeOriginal:  target,
		metadata.FieldDateTimeDigitized: target,
	}
	if types.ValidTimestampPtr(rec.Timestamps.Original) {
		fields[metadata.FieldDateTimeOriginal] = *rec.Timestamps.Original
	}
	if types.ValidTimestampPtr(rec.Timestamps.Digitized) {
		fields[metadata.FieldDateTimeDigitized] = *rec.Timestamps.Digitized
	}
	return fields
}
