// Package log wires zerolog to the console and an optional log file and
// prints run summaries and progress lines.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/On-Jun9/ShutterFix/pkg/types"
)

type Options struct {
	// FilePath is the log file; empty disables file logging.
	FilePath string
	// JSON writes the file as one JSON object per line instead of text.
	JSON    bool
	Verbose bool
	// Console defaults to os.Stderr.
	Console io.Writer
}

type Logger struct {
	mu       sync.Mutex
	console  io.Writer
	file     *os.File
	zl       zerolog.Logger
	progress bool
	active   bool
}

func New(opts Options) (*Logger, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	l := &Logger{console: console, progress: isTerminal(console)}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05", NoColor: !l.progress}}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		l.file = file

		if opts.JSON {
			writers = append(writers, file)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{Out: file, TimeFormat: "2006-01-02 15:04:05", NoColor: true})
		}
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	l.zl = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger().Level(level)
	return l, nil
}

// Zerolog returns the structured logger handed to components.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) Close() error {
	l.endProgress()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) Summary(summary types.RunSummary) {
	l.endProgress()

	l.zl.Info().
		Str("operation", summary.Operation).
		Int("processed", summary.Processed).
		Int("changed", summary.Changed).
		Int("failed", summary.Failed).
		Bool("interrupted", summary.Interrupted).
		Bool("persisted", summary.Persisted).
		Dur("duration", summary.Duration).
		Msg("run finished")

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.console, "\n=== ShutterFix %s ===\n", summary.Operation)
	fmt.Fprintf(l.console, "Processed:      %d\n", summary.Processed)
	if summary.Probed > 0 {
		fmt.Fprintf(l.console, "Probed:         %d\n", summary.Probed)
	}
	if summary.Pruned > 0 {
		fmt.Fprintf(l.console, "Pruned:         %d\n", summary.Pruned)
	}
	if summary.Fixed > 0 {
		fmt.Fprintf(l.console, "Fixed:          %d\n", summary.Fixed)
	}
	if summary.Written > 0 {
		fmt.Fprintf(l.console, "Written:        %d\n", summary.Written)
	}
	fmt.Fprintf(l.console, "Changed:        %d\n", summary.Changed)
	fmt.Fprintf(l.console, "Skipped:        %d\n", summary.Skipped)
	fmt.Fprintf(l.console, "Failed:         %d\n", summary.Failed)
	fmt.Fprintf(l.console, "Saved:          %t\n", summary.Persisted)
	if summary.Interrupted {
		fmt.Fprintln(l.console, "Interrupted:    true")
	}
	fmt.Fprintf(l.console, "Duration:       %s\n", summary.Duration.Round(time.Millisecond))
	fmt.Fprintln(l.console, "===========================")
}

// Progress redraws a single status line. It is silent unless the console
// is a terminal.
func (l *Logger) Progress(current, total int, name string) {
	if !l.progress {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.active = true
	fmt.Fprintf(l.console, "\r\033[K[%d/%d] %s", current, total, name)
}

func (l *Logger) endProgress() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active {
		fmt.Fprintln(l.console)
		l.active = false
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
