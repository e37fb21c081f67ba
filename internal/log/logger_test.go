package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/On-Jun9/ShutterFix/pkg/types"
)

// TestLogger_WritesTextEntriesToFile는 테스트 코드 동작을 검증하거나 보조합니다.
func TestLogger_WritesTextEntriesToFile(t *testing.T) {
	// 텍스트 모드에서는 콘솔과 파일에 같은 메시지가 기록되어야 한다.
	var console bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, err := New(Options{FilePath: logPath, Console: &console})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	zl := logger.Zerolog()
	zl.Info().Str("file", "a.jpg").Msg("hello")
	zl.Error().Err(errors.New("boom")).Msg("failed op")
	zl.Debug().Msg("hidden")

	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	text := string(data)

	if !strings.Contains(text, "hello") || !strings.Contains(text, "file=a.jpg") {
		t.Fatalf("missing info log line: %s", text)
	}
	if !strings.Contains(text, "failed op") || !strings.Contains(text, "boom") {
		t.Fatalf("missing error log line: %s", text)
	}
	// verbose가 아니면 debug 로그는 출력되지 않아야 한다.
	if strings.Contains(text, "hidden") {
		t.Fatalf("debug line should be filtered: %s", text)
	}
	if !strings.Contains(console.String(), "hello") {
		t.Fatalf("missing console output: %s", console.String())
	}
}

// TestLogger_JSONModeWritesJSONLine는 테스트 코드 동작을 검증하거나 보조합니다.
func TestLogger_JSONModeWritesJSONLine(t *testing.T) {
	// JSON 모드에서는 파일에 한 줄 JSON 레코드가 출력되어야 한다.
	logPath := filepath.Join(t.TempDir(), "logs", "app.jsonl")
	logger, err := New(Options{FilePath: logPath, JSON: true, Verbose: true, Console: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	zl := logger.Zerolog()
	zl.Debug().Msg("json-message")
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read json log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"json-message"`) {
		t.Fatalf("unexpected json log content: %s", string(data))
	}
	if !strings.Contains(string(data), `"level":"debug"`) {
		t.Fatalf("expected debug level with verbose: %s", string(data))
	}
}

// TestLogger_New_ReturnsErrorWhenDirBlocked는 테스트 코드 동작을 검증하거나 보조합니다.
func TestLogger_New_ReturnsErrorWhenDirBlocked(t *testing.T) {
	// 로그 디렉터리 위치가 파일이면 생성 에러를 반환해야 한다.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write blocker: %v", err)
	}
	if _, err := New(Options{FilePath: filepath.Join(blocker, "app.log")}); err == nil {
		t.Fatal("expected error when log dir is a file")
	}
}

// TestLogger_Summary_WritesToConsole는 테스트 코드 동작을 검증하거나 보조합니다.
func TestLogger_Summary_WritesToConsole(t *testing.T) {
	// Summary 출력은 console writer로 전달되어야 한다.
	var buf bytes.Buffer
	logger, err := New(Options{Console: &buf})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Summary(types.RunSummary{
		Operation: "scan",
		Processed: 3,
		Probed:    2,
		Changed:   2,
		Persisted: true,
		Duration:  2 * time.Second,
	})

	out := buf.String()
	if !strings.Contains(out, "=== ShutterFix scan ===") {
		t.Fatalf("missing summary header: %s", out)
	}
	if !strings.Contains(out, "Probed:         2") || !strings.Contains(out, "Saved:          true") {
		t.Fatalf("missing summary fields: %s", out)
	}
	if strings.Contains(out, "Written:") {
		t.Fatalf("zero counters should be omitted: %s", out)
	}
}

// TestLogger_Progress_SilentWithoutTerminal는 테스트 코드 동작을 검증하거나 보조합니다.
func TestLogger_Progress_SilentWithoutTerminal(t *testing.T) {
	// 터미널이 아니면 진행률 줄을 출력하지 않아야 한다.
	var buf bytes.Buffer
	logger, err := New(Options{Console: &buf})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	logger.Progress(1, 2, "a.jpg")
	if buf.Len() != 0 {
		t.Fatalf("expected no progress output, got %q", buf.String())
	}
}

// TestLogger_Progress_DrawsLineWhenEnabled는 테스트 코드 동작을 검증하거나 보조합니다.
func TestLogger_Progress_DrawsLineWhenEnabled(t *testing.T) {
	// 진행률이 켜져 있으면 한 줄을 갱신하고 Close 시 줄바꿈해야 한다.
	var buf bytes.Buffer
	logger := &Logger{console: &buf, progress: true}

	logger.Progress(1, 2, "a.jpg")
	if err := logger.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "[1/2] a.jpg") || !strings.HasSuffix(out, "\n") {
		t.Fatalf("unexpected progress output: %q", out)
	}
}

// TestLogger_CloseWithNilFile는 테스트 코드 동작을 검증하거나 보조합니다.
func TestLogger_CloseWithNilFile(t *testing.T) {
	// 파일 핸들이 없는 로거는 Close 시 에러 없이 종료되어야 한다.
	logger := &Logger{}
	if err := logger.Close(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
