package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/On-Jun9/ShutterFix/pkg/types"
)

// ErrUnknownField is returned when a predicate names a field that is not a
// record column.
var ErrUnknownField = errors.New("unknown filter field")

type fieldKind int

const (
	kindString fieldKind = iota
	kindBool
)

// Columns is the fixed record column order shared by tables, filters and CSV.
var Columns = []string{
	"filename",
	"has_exif",
	"datetime",
	"datetime_original",
	"datetime_digitized",
	"ok",
	"issue",
	"can_fix",
}

var columnKinds = map[string]fieldKind{
	"filename":           kindString,
	"has_exif":           kindBool,
	"datetime":           kindString,
	"datetime_original":  kindString,
	"datetime_digitized": kindString,
	"ok":                 kindBool,
	"issue":              kindString,
	"can_fix":            kindBool,
}

// Predicate is one parsed `field=value` or `field!=value` term.
type Predicate struct {
	Field  string
	Negate bool
	kind   fieldKind
	// Bool is the expected value of a boolean column.
	Bool bool
	// Value is the expected value of a string column; nil matches absence.
	Value *string
}

// ParsePredicate parses a single term. Boolean columns accept y, yes and
// true (case-insensitive) as true and anything else as false. The literals
// null and none match an absent value.
func ParsePredicate(expr string) (Predicate, error) {
	key, value, ok := strings.Cut(expr, "=")
	if !ok {
		return Predicate{}, fmt.Errorf("invalid filter %q: expected field=value", expr)
	}

	var p Predicate
	key = strings.TrimSpace(key)
	if strings.HasSuffix(key, "!") {
		p.Negate = true
		key = strings.TrimSuffix(key, "!")
	}

	kind, known := columnKinds[key]
	if !known {
		return Predicate{}, fmt.Errorf("%w: %q", ErrUnknownField, key)
	}
	p.Field = key
	p.kind = kind

	lower := strings.ToLower(value)
	switch {
	case kind == kindBool:
		p.Bool = lower == "y" || lower == "yes" || lower == "true"
	case lower == "null" || lower == "none":
		p.Value = nil
	default:
		p.Value = types.StringPtr(value)
	}
	return p, nil
}

// ParseFilter parses every term; the first invalid term aborts parsing.
func ParseFilter(exprs []string) ([]Predicate, error) {
	preds := make([]Predicate, 0, len(exprs))
	for _, expr := range exprs {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		p, err := ParsePredicate(expr)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// Match applies the predicate to the column view of rec.
func (p Predicate) Match(rec types.PhotoRecord) bool {
	var equal bool
	if p.kind == kindBool {
		equal = boolColumn(rec, p.Field) == p.Bool
	} else {
		got := stringColumn(rec, p.Field)
		if got == nil || p.Value == nil {
			equal = got == nil && p.Value == nil
		} else {
			equal = *got == *p.Value
		}
	}
	return equal != p.Negate
}

func matchAll(rec types.PhotoRecord, preds []Predicate) bool {
	for _, p := range preds {
		if !p.Match(rec) {
			return false
		}
	}
	return true
}

func boolColumn(rec types.PhotoRecord, field string) bool {
	switch field {
	case "has_exif":
		return rec.HasMetadata
	case "ok":
		return rec.OK
	case "can_fix":
		return rec.CanFix()
	}
	return false
}

func stringColumn(rec types.PhotoRecord, field string) *string {
	switch field {
	case "filename":
		return types.StringPtr(rec.Path)
	case "issue":
		if rec.Issue == types.IssueNone {
			return nil
		}
		return types.StringPtr(string(rec.Issue))
	}
	if rec.Timestamps == nil {
		return nil
	}
	switch field {
	case "datetime":
		return rec.Timestamps.Captured
	case "datetime_original":
		return rec.Timestamps.Original
	case "datetime_digitized":
		return rec.Timestamps.Digitized
	}
	return nil
}

// Values returns the column view of rec in Columns order. Absent values are
// nil; boolean columns are rendered by the caller.
func Values(rec types.PhotoRecord) []any {
	out := make([]any, len(Columns))
	for i, col := range Columns {
		if columnKinds[col] == kindBool {
			out[i] = boolColumn(rec, col)
			continue
		}
		if v := stringColumn(rec, col); v != nil {
			out[i] = *v
		}
	}
	return out
}
