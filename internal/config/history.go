package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/On-Jun9/ShutterFix/pkg/types"
)

// MaxHistoryEntries bounds the stored run history.
const MaxHistoryEntries = 100

// HistoryManager keeps a newest-first log of finished operations.
type HistoryManager struct {
	dataDir string
}

func NewHistoryManager() (*HistoryManager, error) {
	dataDir := DataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &HistoryManager{dataDir: dataDir}, nil
}

func (m *HistoryManager) filePath() string {
	return filepath.Join(m.dataDir, "run-history.json")
}

// Load returns an empty history if the file doesn't exist.
func (m *HistoryManager) Load() (*types.RunHistory, error) {
	data, err := os.ReadFile(m.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return &types.RunHistory{Entries: []types.RunHistoryEntry{}, UpdatedAt: time.Now()}, nil
		}
		return nil, fmt.Errorf("failed to read run history file: %w", err)
	}

	var history types.RunHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run history: %w", err)
	}
	return &history, nil
}

func (m *HistoryManager) Save(history *types.RunHistory) error {
	history.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run history: %w", err)
	}
	if err := writeFileAtomic(m.filePath(), data); err != nil {
		return fmt.Errorf("failed to write run history file: %w", err)
	}
	return nil
}

// Add prepends entry, assigning an ID and creation time when missing, and
// keeps only the most recent MaxHistoryEntries.
func (m *HistoryManager) Add(entry types.RunHistoryEntry) error {
	history, err := m.Load()
	if err != nil {
		return fmt.Errorf("failed to load run history: %w", err)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	history.Entries = append([]types.RunHistoryEntry{entry}, history.Entries...)
	if len(history.Entries) > MaxHistoryEntries {
		history.Entries = history.Entries[:MaxHistoryEntries]
	}

	if err := m.Save(history); err != nil {
		return fmt.Errorf("failed to save run history: %w", err)
	}
	return nil
}
