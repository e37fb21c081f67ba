// Package types defines core data structures used across ShutterFix modules.
package types

import (
	"time"
)

// FileEntry represents a file found under the scan root.
type FileEntry struct {
	// Path is the absolute path to the file.
	Path string
	// RelPath is the path relative to the scan root. It is the inventory key.
	RelPath string
}

// Timestamps holds the three EXIF date fields of a record in canonical form.
// A nil field means the value is absent.
type Timestamps struct {
	Captured  *string `json:"datetime"`
	Original  *string `json:"datetime_original"`
	Digitized *string `json:"datetime_digitized"`
}

// SameTimestamps returns Timestamps with all three fields set to value.
func SameTimestamps(value string) *Timestamps {
	return &Timestamps{
		Captured:  StringPtr(value),
		Original:  StringPtr(value),
		Digitized: StringPtr(value),
	}
}

// Empty reports whether no field carries a value.
func (t *Timestamps) Empty() bool {
	return t == nil || (t.Captured == nil && t.Original == nil && t.Digitized == nil)
}

// PhotoRecord is the inventory entry of one file. Its JSON shape is the
// persisted database format.
type PhotoRecord struct {
	// Path is relative to the scan root and is the unique inventory key.
	Path        string      `json:"filename"`
	Timestamps  *Timestamps `json:"exif,omitempty"`
	HasMetadata bool        `json:"has_exif"`
	OK          bool        `json:"ok"`
	Issue       Issue       `json:"issue,omitempty"`
}

// Captured returns the primary timestamp, if any.
func (r PhotoRecord) Captured() (string, bool) {
	if r.Timestamps == nil || r.Timestamps.Captured == nil {
		return "", false
	}
	return *r.Timestamps.Captured, true
}

// CanFix is derived from the issue and never stored.
func (r PhotoRecord) CanFix() bool {
	if r.OK {
		return false
	}
	return !r.Issue.Terminal()
}

// Status places the record in one of the three resolution states.
func (r PhotoRecord) Status() Status {
	if r.OK {
		return StatusVerified
	}
	if _, ok := r.Captured(); ok {
		return StatusResolved
	}
	return StatusUnresolved
}

// Equal reports whether both records hold the same persisted values.
func (r PhotoRecord) Equal(o PhotoRecord) bool {
	if r.Path != o.Path || r.HasMetadata != o.HasMetadata || r.OK != o.OK || r.Issue != o.Issue {
		return false
	}
	if r.Timestamps.Empty() || o.Timestamps.Empty() {
		return r.Timestamps.Empty() == o.Timestamps.Empty()
	}
	return equalPtr(r.Timestamps.Captured, o.Timestamps.Captured) &&
		equalPtr(r.Timestamps.Original, o.Timestamps.Original) &&
		equalPtr(r.Timestamps.Digitized, o.Timestamps.Digitized)
}

// Clone returns a deep copy so sub-inventories never share timestamp storage.
func (r PhotoRecord) Clone() PhotoRecord {
	if r.Timestamps != nil {
		ts := Timestamps{
			Captured:  copyPtr(r.Timestamps.Captured),
			Original:  copyPtr(r.Timestamps.Original),
			Digitized: copyPtr(r.Timestamps.Digitized),
		}
		r.Timestamps = &ts
	}
	return r
}

// Status is the resolution state of a record.
type Status string

const (
	StatusUnresolved Status = "unresolved"
	StatusResolved   Status = "heuristically-resolved"
	StatusVerified   Status = "verified"
)

// RunStatus represents the outcome of one operation.
type RunStatus string

const (
	RunStatusSuccess     RunStatus = "success"
	RunStatusFailed      RunStatus = "failed"
	RunStatusInterrupted RunStatus = "interrupted"
)

// RunSummary contains statistics for a completed operation.
type RunSummary struct {
	Operation   string        `json:"operation"`
	Processed   int           `json:"processed"`
	Probed      int           `json:"probed"`
	Pruned      int           `json:"pruned"`
	Fixed       int           `json:"fixed"`
	Skipped     int           `json:"skipped"`
	Changed     int           `json:"changed"`
	Written     int           `json:"written"`
	Failed      int           `json:"failed"`
	Interrupted bool          `json:"interrupted"`
	Persisted   bool          `json:"persisted"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
}

// RunHistoryEntry represents one recorded operation.
type RunHistoryEntry struct {
	ID        string     `json:"id"`
	Root      string     `json:"root"`
	Summary   RunSummary `json:"summary"`
	Status    RunStatus  `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// RunHistory stores the collection of run history entries, newest first.
type RunHistory struct {
	Entries   []RunHistoryEntry `json:"entries"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}

func copyPtr(p *string) *string {
	if p == nil {
		return nil
	}
	return StringPtr(*p)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
