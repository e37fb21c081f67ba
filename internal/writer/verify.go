package writer

import (
	"fmt"
	"os"

	"github.com/On-Jun9/ShutterFix/internal/metadata"
)

// Verifier re-reads a rewritten file and compares its timestamp fields.
type Verifier struct {
	accessor metadata.Accessor
}

func NewVerifier(accessor metadata.Accessor) *Verifier {
	return &Verifier{accessor: accessor}
}

func (v *Verifier) Verify(path string, expectedSize int64, fields map[metadata.Field]string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("rewritten file not found: %w", err)
	}
	if info.Size() != expectedSize {
		return fmt.Errorf("size mismatch: expected %d, got %d", expectedSize, info.Size())
	}

	h, err := v.accessor.Open(path)
	if err != nil {
		return fmt.Errorf("failed to reopen: %w", err)
	}
	for _, field := range metadata.TimestampFields {
		want, ok := fields[field]
		if !ok {
			continue
		}
		if got, _ := h.Field(field); got != want {
			return fmt.Errorf("%s mismatch: expected %q, got %q", field, want, got)
		}
	}
	return nil
}
