// Package metadata reads and rewrites the timestamp fields of image metadata
// containers.
package metadata

import (
	"errors"
	"fmt"
)

// Field names one of the timestamp attributes of a metadata container.
type Field string

const (
	FieldDateTime          Field = "datetime"
	FieldDateTimeOriginal  Field = "datetime_original"
	FieldDateTimeDigitized Field = "datetime_digitized"
)

// TimestampFields lists the timestamp fields in the order they are written.
var TimestampFields = []Field{FieldDateTime, FieldDateTimeOriginal, FieldDateTimeDigitized}

// Accessor opens files and decodes their metadata container.
type Accessor interface {
	// Open fails with *DecodeError when the file is unreadable or malformed.
	Open(path string) (Handle, error)
}

// Handle is a decoded metadata container.
type Handle interface {
	HasMetadata() bool
	// Field returns the value of name; absence is a normal outcome.
	Field(name Field) (string, bool)
	// WriteFields returns the complete file content with the given fields
	// set. The caller writes it to disk.
	WriteFields(fields map[Field]string) ([]byte, error)
}

// ErrNotJPEG is the cause of a DecodeError for files without a JPEG header.
var ErrNotJPEG = errors.New("not a JPEG file")

// DecodeError reports a file whose metadata could not be read.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode metadata of %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
