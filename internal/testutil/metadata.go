// Package testutil provides in-memory collaborators for package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync"

	"github.com/On-Jun9/ShutterFix/internal/metadata"
)

// FakeFile describes the metadata of one fake file.
type FakeFile struct {
	NoMetadata bool
	Broken     bool
	Fields     map[metadata.Field]string
}

// FakeAccessor serves metadata from memory, keyed by path.
type FakeAccessor struct {
	mu     sync.Mutex
	Files  map[string]*FakeFile
	Opened []string
}

func NewFakeAccessor() *FakeAccessor {
	return &FakeAccessor{Files: make(map[string]*FakeFile)}
}

// Set registers a file with the given timestamp fields and metadata present.
func (a *FakeAccessor) Set(path string, fields map[metadata.Field]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Files[path] = &FakeFile{Fields: fields}
}

// SetNoMetadata registers a file without a metadata block.
func (a *FakeAccessor) SetNoMetadata(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Files[path] = &FakeFile{NoMetadata: true, Fields: map[metadata.Field]string{}}
}

// SetBroken registers a file whose container fails to decode.
func (a *FakeAccessor) SetBroken(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Files[path] = &FakeFile{Broken: true}
}

func (a *FakeAccessor) Open(path string) (metadata.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Opened = append(a.Opened, path)
	f, ok := a.Files[path]
	if !ok {
		return nil, &metadata.DecodeError{Path: path, Err: fmt.Errorf("no such fake file")}
	}
	if f.Broken {
		return nil, &metadata.DecodeError{Path: path, Err: fmt.Errorf("malformed container")}
	}
	return &fakeHandle{file: f}, nil
}

// OpenCount returns how many times paths ending in suffix were opened.
func (a *FakeAccessor) OpenCount(suffix string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, p := range a.Opened {
		if strings.HasSuffix(p, suffix) {
			n++
		}
	}
	return n
}

type fakeHandle struct {
	file *FakeFile
}

func (h *fakeHandle) HasMetadata() bool {
	return !h.file.NoMetadata
}

func (h *fakeHandle) Field(name metadata.Field) (string, bool) {
	v, ok := h.file.Fields[name]
	return v, ok
}

// WriteFields applies fields to the fake file, as if the returned content
// had been written back, and returns the values as "name=value" lines.
func (h *fakeHandle) WriteFields(fields map[metadata.Field]string) ([]byte, error) {
	if h.file.Fields == nil {
		h.file.Fields = make(map[metadata.Field]string)
	}
	var b strings.Builder
	for _, f := range metadata.TimestampFields {
		if v, ok := fields[f]; ok {
			h.file.Fields[f] = v
			fmt.Fprintf(&b, "%s=%s\n", f, v)
		}
	}
	h.file.NoMetadata = false
	return []byte(b.String()), nil
}
