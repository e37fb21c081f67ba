package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	dexif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	"github.com/rwcarlsen/goexif/exif"
)

var exifHeader = []byte("Exif\x00\x00")

// readTags maps fields to the goexif tag names used for reading.
var readTags = map[Field]exif.FieldName{
	FieldDateTime:          exif.DateTime,
	FieldDateTimeOriginal:  exif.DateTimeOriginal,
	FieldDateTimeDigitized: exif.DateTimeDigitized,
}

type tagLocation struct {
	ifdPath string
	tagName string
}

// writeTags maps fields to the IFD and standard tag name used for writing.
var writeTags = map[Field]tagLocation{
	FieldDateTime:          {ifdPath: "IFD0", tagName: "DateTime"},
	FieldDateTimeOriginal:  {ifdPath: "IFD/Exif", tagName: "DateTimeOriginal"},
	FieldDateTimeDigitized: {ifdPath: "IFD/Exif", tagName: "DateTimeDigitized"},
}

// EXIFAccessor reads EXIF from JPEG files. Segment handling and write-back
// use go-jpeg-image-structure; tag values are decoded with goexif.
type EXIFAccessor struct{}

func NewEXIFAccessor() *EXIFAccessor {
	return &EXIFAccessor{}
}

func (a *EXIFAccessor) Open(path string) (Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return Decode(path, data)
}

// Decode parses an in-memory JPEG. path is only used in errors.
func Decode(path string, data []byte) (Handle, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, &DecodeError{Path: path, Err: ErrNotJPEG}
	}

	mc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	sl, ok := mc.(*jpegstructure.SegmentList)
	if !ok {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("unexpected media context %T", mc)}
	}

	h := &exifHandle{path: path, segments: sl, fields: make(map[Field]string)}

	_, seg, err := sl.FindExif()
	if err != nil {
		if errors.Is(err, dexif.ErrNoExif) {
			return h, nil
		}
		return nil, &DecodeError{Path: path, Err: err}
	}
	h.hasMetadata = true

	payload := bytes.TrimPrefix(seg.Data, exifHeader)
	x, err := exif.Decode(bytes.NewReader(payload))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, &DecodeError{Path: path, Err: err}
	}

	for field, name := range readTags {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		val, err := tag.StringVal()
		if err != nil {
			continue
		}
		h.fields[field] = strings.TrimRight(val, "\x00 ")
	}

	return h, nil
}

type exifHandle struct {
	path        string
	segments    *jpegstructure.SegmentList
	hasMetadata bool
	fields      map[Field]string
}

func (h *exifHandle) HasMetadata() bool {
	return h.hasMetadata
}

func (h *exifHandle) Field(name Field) (string, bool) {
	v, ok := h.fields[name]
	return v, ok
}

func (h *exifHandle) WriteFields(fields map[Field]string) ([]byte, error) {
	rootIb, err := h.segments.ConstructExifBuilder()
	if err != nil {
		if !errors.Is(err, dexif.ErrNoExif) {
			return nil, fmt.Errorf("read exif of %s: %w", h.path, err)
		}
		im := exifcommon.NewIfdMapping()
		if err := exifcommon.LoadStandardIfds(im); err != nil {
			return nil, err
		}
		rootIb = dexif.NewIfdBuilder(im, dexif.NewTagIndex(), exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	}

	for _, field := range TimestampFields {
		value, ok := fields[field]
		if !ok {
			continue
		}
		loc := writeTags[field]
		ib, err := dexif.GetOrCreateIbFromRootIb(rootIb, loc.ifdPath)
		if err != nil {
			return nil, fmt.Errorf("open %s in %s: %w", loc.ifdPath, h.path, err)
		}
		if err := ib.SetStandardWithName(loc.tagName, value); err != nil {
			return nil, fmt.Errorf("set %s in %s: %w", loc.tagName, h.path, err)
		}
	}

	if err := h.segments.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("encode exif of %s: %w", h.path, err)
	}

	var buf bytes.Buffer
	if err := h.segments.Write(&buf); err != nil {
		return nil, fmt.Errorf("encode %s: %w", h.path, err)
	}

	for field, value := range fields {
		h.fields[field] = value
	}
	h.hasMetadata = true
	return buf.Bytes(), nil
}
