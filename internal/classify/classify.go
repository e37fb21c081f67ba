// Package classify derives a PhotoRecord from the metadata of one file.
package classify

import (
	"path/filepath"
	"strings"

	"github.com/On-Jun9/ShutterFix/internal/metadata"
	"github.com/On-Jun9/ShutterFix/pkg/types"
)

type Classifier struct {
	accessor   metadata.Accessor
	extensions map[string]bool
}

func New(accessor metadata.Accessor, extensions []string) *Classifier {
	extMap := make(map[string]bool)
	for _, ext := range extensions {
		extMap[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &Classifier{accessor: accessor, extensions: extMap}
}

// Supported reports whether the file extension is a supported still image.
func (c *Classifier) Supported(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return c.extensions[ext]
}

// Classify probes root/relPath and returns its record. The returned record
// always carries relPath as its key.
func (c *Classifier) Classify(root, relPath string) types.PhotoRecord {
	rec := types.PhotoRecord{Path: relPath}

	if !c.Supported(relPath) {
		rec.Issue = types.IssueNoPictureFile
		return rec
	}

	h, err := c.accessor.Open(filepath.Join(root, relPath))
	if err != nil {
		rec.Issue = types.IssueErrorReadingExif
		return rec
	}

	rec.HasMetadata = h.HasMetadata()
	if !rec.HasMetadata {
		rec.Issue = types.IssueNoMetadata
		return rec
	}

	captured, ok := h.Field(metadata.FieldDateTime)
	if !ok {
		rec.Issue = types.IssueNoDatetime
		return rec
	}
	// An invalid value is dropped, never stored.
	if !types.ValidTimestamp(captured) {
		rec.Issue = types.IssueInvalidDatetime
		return rec
	}

	original, ok := h.Field(metadata.FieldDateTimeOriginal)
	if !ok {
		original = captured
	}
	digitized, ok := h.Field(metadata.FieldDateTimeDigitized)
	if !ok {
		digitized = captured
	}

	rec.OK = true
	rec.Timestamps = &types.Timestamps{
		Captured:  types.StringPtr(captured),
		Original:  types.StringPtr(original),
		Digitized: types.StringPtr(digitized),
	}
	return rec
}
