// Package csvio exports records to CSV and merges manual overrides back.
package csvio

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/On-Jun9/ShutterFix/internal/inventory"
	"github.com/On-Jun9/ShutterFix/internal/state"
	"github.com/On-Jun9/ShutterFix/pkg/types"
)

// ErrHeaderMismatch is returned when an imported file does not start with
// the record column header.
var ErrHeaderMismatch = errors.New("csv header does not match record columns")

const (
	DefaultField = "issue"
	DefaultValue = string(types.IssueManualFix)
)

// Export writes the header and one row per record in path order. Records
// not matching every predicate are left out.
func Export(w io.Writer, inv *inventory.Inventory, preds []inventory.Predicate) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(inventory.Columns); err != nil {
		return 0, err
	}

	rows := 0
	for _, rec := range inv.Filter(preds).Records() {
		if err := cw.Write(Row(rec)); err != nil {
			return rows, err
		}
		rows++
	}

	cw.Flush()
	return rows, cw.Error()
}

// ExportFile writes the CSV to path, replacing it atomically.
func ExportFile(path string, inv *inventory.Inventory, preds []inventory.Predicate) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, err
	}

	tmpFile := path + ".tmp"
	f, err := os.Create(tmpFile)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	rows, err := Export(f, inv, preds)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpFile)
		return rows, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return rows, fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return rows, nil
}

// Row renders rec in column order. Booleans are True/False and absent
// values are empty.
func Row(rec types.PhotoRecord) []string {
	values := inventory.Values(rec)
	row := make([]string, len(values))
	for i, v := range values {
		switch v := v.(type) {
		case bool:
			row[i] = inventory.FormatBool(v)
		case string:
			row[i] = v
		}
	}
	return row
}

// UpdateOptions selects the rows of an import and whether existing
// timestamps may be overwritten.
type UpdateOptions struct {
	Field    string
	Value    string
	Force    bool
	Progress types.ProgressFunc
}

// UpdateResult counts the outcome of an import.
type UpdateResult struct {
	Rows    int
	Matched int
	Applied int
	Skipped int
}

// Importer merges reviewed CSV rows into an inventory as manual fixes.
type Importer struct {
	logger zerolog.Logger
}

func NewImporter(logger zerolog.Logger) *Importer {
	return &Importer{logger: logger}
}

// UpdateFromFile reads path and applies the rows whose opts.Field column
// equals opts.Value. A row only updates a record that is not ok and, unless
// Force is set, carries no timestamp yet. Rows that cannot be applied are
// skipped with a warning.
func (im *Importer) UpdateFromFile(ctx context.Context, inv *inventory.Inventory, path string, opts UpdateOptions) (UpdateResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return UpdateResult{}, err
	}
	defer f.Close()
	return im.Update(ctx, inv, f, opts)
}

func (im *Importer) Update(ctx context.Context, inv *inventory.Inventory, r io.Reader, opts UpdateOptions) (UpdateResult, error) {
	var res UpdateResult
	if opts.Field == "" {
		opts.Field = DefaultField
		if opts.Value == "" {
			opts.Value = DefaultValue
		}
	}

	col := columnIndex(opts.Field)
	if col < 0 {
		return res, fmt.Errorf("%w: %q", inventory.ErrUnknownField, opts.Field)
	}

	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return res, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 || !sameHeader(records[0]) {
		return res, ErrHeaderMismatch
	}
	rows := records[1:]
	res.Rows = len(rows)
	im.logger.Info().Int("rows", len(rows)).Str("field", opts.Field).Str("value", opts.Value).Msg("processing csv rows")

	var (
		iFilename  = columnIndex("filename")
		iDatetime  = columnIndex("datetime")
		iOriginal  = columnIndex("datetime_original")
		iDigitized = columnIndex("datetime_digitized")
	)

	for i, row := range rows {
		if row[col] != opts.Value {
			continue
		}
		if err := types.Interrupted(ctx); err != nil {
			return res, err
		}
		opts.Progress.Report(i+1, len(rows), row[iFilename])
		res.Matched++

		key := state.RelativeTo(inv.Root(), row[iFilename])
		logger := im.logger.With().Str("file", key).Logger()

		rec, ok := inv.Get(key)
		if !ok {
			logger.Warn().Msg("entry not found in database")
			res.Skipped++
			continue
		}
		if rec.OK {
			logger.Warn().Msg("entry is already verified, not applying manual fix")
			res.Skipped++
			continue
		}
		if current, has := rec.Captured(); has && !opts.Force {
			logger.Warn().Str("datetime", current).Msg("entry already has a datetime, use --force to overwrite")
			res.Skipped++
			continue
		}

		ts, err := rowTimestamps(row[iDatetime], row[iOriginal], row[iDigitized])
		if err != nil {
			logger.Warn().Err(err).Msg("skipping row")
			res.Skipped++
			continue
		}

		rec.Timestamps = ts
		rec.HasMetadata = true
		rec.Issue = types.IssueManualFix
		inv.Put(rec)
		res.Applied++
		logger.Debug().Str("datetime", *ts.Captured).Msg("applied manual fix")
	}

	im.logger.Info().Int("matched", res.Matched).Int("applied", res.Applied).Int("skipped", res.Skipped).Msg("csv import finished")
	if res.Matched != res.Applied {
		im.logger.Warn().Msg("not every marked row was applied; use --force to overwrite existing timestamps")
	}
	return res, nil
}

func rowTimestamps(datetime, original, digitized string) (*types.Timestamps, error) {
	if datetime == "" {
		return nil, errors.New("datetime column is empty")
	}
	if !types.ValidTimestamp(datetime) {
		return nil, fmt.Errorf("invalid datetime %q", datetime)
	}
	if original == "" {
		original = datetime
	}
	if digitized == "" {
		digitized = datetime
	}
	for _, v := range []string{original, digitized} {
		if !types.ValidTimestamp(v) {
			return nil, fmt.Errorf("invalid secondary datetime %q", v)
		}
	}
	return &types.Timestamps{
		Captured:  types.StringPtr(datetime),
		Original:  types.StringPtr(original),
		Digitized: types.StringPtr(digitized),
	}, nil
}

func columnIndex(name string) int {
	for i, c := range inventory.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func sameHeader(row []string) bool {
	if len(row) != len(inventory.Columns) {
		return false
	}
	for i, c := range inventory.Columns {
		if row[i] != c {
			return false
		}
	}
	return true
}
