package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/On-Jun9/ShutterFix/internal/config"
	"github.com/On-Jun9/ShutterFix/internal/log"
	"github.com/On-Jun9/ShutterFix/internal/metadata"
	"github.com/On-Jun9/ShutterFix/internal/repair"
	"github.com/On-Jun9/ShutterFix/internal/testutil"
	"github.com/On-Jun9/ShutterFix/pkg/types"
)

type fixture struct {
	cfg *config.Config
	acc *testutil.FakeAccessor
	p   *Pipeline
}

// newTestConfig는 테스트 코드 동작을 검증하거나 보조합니다.
func newTestConfig(baseDir string) *config.Config {
	return &config.Config{
		Root:            filepath.Join(baseDir, "photos"),
		Database:        filepath.Join(baseDir, "db.json"),
		DirIndex:        filepath.Join(baseDir, "dirs.json"),
		FilenamePattern: repair.DefaultFilenamePattern,
		Extensions:      []string{"jpg", "jpeg"},
		LogFile:         filepath.Join(baseDir, "logs", "shutterfix.log"),
		PreserveMtime:   true,
	}
}

// newFixture는 가짜 메타데이터 접근자와 임시 HOME으로 파이프라인을 만듭니다.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	baseDir := t.TempDir()
	t.Setenv("HOME", filepath.Join(baseDir, "home"))

	cfg := newTestConfig(baseDir)
	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		t.Fatalf("failed to create root: %v", err)
	}

	logger, err := log.New(log.Options{Console: io.Discard})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	history, err := config.NewHistoryManager()
	if err != nil {
		t.Fatalf("failed to create history manager: %v", err)
	}

	acc := testutil.NewFakeAccessor()
	p, err := NewWithAccessor(cfg, acc, logger, history)
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	return &fixture{cfg: cfg, acc: acc, p: p}
}

// touch는 디스크에 파일을 만들고 가짜 메타데이터를 등록합니다. fields가 nil이면 메타데이터 없음.
func (f *fixture) touch(t *testing.T, rel string, fields map[metadata.Field]string) string {
	t.Helper()
	path := filepath.Join(f.cfg.Root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if fields == nil {
		f.acc.SetNoMetadata(path)
	} else {
		f.acc.Set(path, fields)
	}
	return path
}

func dated(ts string) map[metadata.Field]string {
	return map[metadata.Field]string{metadata.FieldDateTime: ts}
}

// history는 저장된 실행 이력을 읽습니다.
func (f *fixture) history(t *testing.T) []types.RunHistoryEntry {
	t.Helper()
	m, err := config.NewHistoryManager()
	if err != nil {
		t.Fatalf("failed to create history manager: %v", err)
	}
	h, err := m.Load()
	if err != nil {
		t.Fatalf("failed to load history: %v", err)
	}
	return h.Entries
}

// TestPipelineNew_FailFastWhenHistoryInitFails는 테스트 코드 동작을 검증하거나 보조합니다.
func TestPipelineNew_FailFastWhenHistoryInitFails(t *testing.T) {
	// ~/.shutterfix 초기화에 실패하면 Pipeline 생성이 즉시 실패해야 한다.
	tmpDir := t.TempDir()
	homeAsFile := filepath.Join(tmpDir, "home-file")
	if err := os.WriteFile(homeAsFile, []byte("not-a-dir"), 0644); err != nil {
		t.Fatalf("failed to create fake home file: %v", err)
	}
	t.Setenv("HOME", homeAsFile)

	_, err := New(newTestConfig(tmpDir))
	if err == nil {
		t.Fatal("expected fail-fast error from history manager init")
	}
	if !strings.Contains(err.Error(), "failed to create history manager") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestPipelineNew_ReturnsErrorWhenLoggerInitFails는 테스트 코드 동작을 검증하거나 보조합니다.
func TestPipelineNew_ReturnsErrorWhenLoggerInitFails(t *testing.T) {
	// 로그 디렉터리 생성이 불가능하면 Pipeline 생성이 실패해야 한다.
	tmpDir := t.TempDir()
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))

	parentAsFile := filepath.Join(tmpDir, "not-dir")
	if err := os.WriteFile(parentAsFile, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create blocking file: %v", err)
	}

	cfg := newTestConfig(tmpDir)
	cfg.LogFile = filepath.Join(parentAsFile, "app.log")

	if _, err := New(cfg); err == nil {
		t.Fatal("expected logger init error")
	}
}

// TestPipelineNew_ReturnsErrorForBadPattern는 테스트 코드 동작을 검증하거나 보조합니다.
func TestPipelineNew_ReturnsErrorForBadPattern(t *testing.T) {
	// 그룹이 부족한 파일명 패턴은 생성 단계에서 거부되어야 한다.
	tmpDir := t.TempDir()
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))

	cfg := newTestConfig(tmpDir)
	cfg.FilenamePattern = "([0-9]{4})"

	if _, err := New(cfg); err == nil {
		t.Fatal("expected pattern error")
	}
}

// TestPipelinePersist_Policy는 테스트 코드 동작을 검증하거나 보조합니다.
func TestPipelinePersist_Policy(t *testing.T) {
	// 변경이 있고 오류가 없을 때만 저장해야 한다.
	f := newFixture(t)
	inv, err := f.p.LoadInventory()
	if !errors.Is(err, ErrNoDatabase) || inv != nil {
		t.Fatalf("expected ErrNoDatabase, got %v", err)
	}

	if _, err := f.p.Scan(context.Background(), ScanOptions{}); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	inv, err = f.p.LoadInventory()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := os.Remove(f.cfg.Database); err != nil {
		t.Fatalf("failed to remove database: %v", err)
	}

	tests := []struct {
		name    string
		changed bool
		opErr   error
		saved   bool
	}{
		{"unchanged", false, nil, false},
		{"interrupted", true, types.ErrInterrupted, false},
		{"changed", true, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s types.RunSummary
			err := f.p.persist(inv, &s, tt.changed, tt.opErr)
			if !errors.Is(err, tt.opErr) {
				t.Fatalf("expected %v, got %v", tt.opErr, err)
			}
			_, statErr := os.Stat(f.cfg.Database)
			if saved := statErr == nil; saved != tt.saved || s.Persisted != tt.saved {
				t.Fatalf("saved=%v persisted=%v, want %v", saved, s.Persisted, tt.saved)
			}
		})
	}
}

// TestPipelineRecordHistory_Statuses는 테스트 코드 동작을 검증하거나 보조합니다.
func TestPipelineRecordHistory_Statuses(t *testing.T) {
	// 성공, 실패, 중단, 개별 실패 포함 실행이 각각의 상태로 기록되어야 한다.
	f := newFixture(t)

	f.p.recordHistory(types.RunSummary{Operation: "fix"}, nil)
	f.p.recordHistory(types.RunSummary{Operation: "write", Failed: 1}, nil)
	f.p.recordHistory(types.RunSummary{Operation: "update"}, errors.New("boom"))
	f.p.recordHistory(types.RunSummary{Operation: "scan", Interrupted: true}, types.ErrInterrupted)

	entries := f.history(t)
	want := []types.RunStatus{
		types.RunStatusInterrupted,
		types.RunStatusFailed,
		types.RunStatusFailed,
		types.RunStatusSuccess,
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, status := range want {
		if entries[i].Status != status {
			t.Fatalf("entry %d (%s): expected %s, got %s", i, entries[i].Summary.Operation, status, entries[i].Status)
		}
		if entries[i].Root != f.cfg.Root || entries[i].ID == "" {
			t.Fatalf("entry %d: unexpected header %+v", i, entries[i])
		}
	}
	if entries[1].Error != "boom" {
		t.Fatalf("expected error message, got %q", entries[1].Error)
	}
}

// TestPipelineProgress_ForwardsThrottledUpdates는 테스트 코드 동작을 검증하거나 보조합니다.
func TestPipelineProgress_ForwardsThrottledUpdates(t *testing.T) {
	// 첫/마지막/주기 단위 레코드만 콜백으로 전달되어야 한다.
	f := newFixture(t)

	var updates []ProgressUpdate
	f.p.SetProgressCallback(func(u ProgressUpdate) { updates = append(updates, u) })

	report := f.p.progress("scan")
	for i := 1; i <= 120; i++ {
		report(i, 120, "a.jpg")
	}

	var currents []int
	for _, u := range updates {
		if u.Type != UpdateProgress || u.Operation != "scan" || u.Total != 120 {
			t.Fatalf("unexpected update: %+v", u)
		}
		currents = append(currents, u.Current)
	}
	want := []int{1, 50, 100, 120}
	if len(currents) != len(want) {
		t.Fatalf("expected %v, got %v", want, currents)
	}
	for i := range want {
		if currents[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, currents)
		}
	}
}
