// Package diag provides the ambient logging and per-decode diagnostics used
// across the decoder. The Logger interface mirrors the shape callers of this
// codebase already know from other AusOcean-style decoders: a settable level
// plus a single variadic Log call, so a host application can drop in its own
// logger without adapting to a bespoke API.
package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels passed to Logger.Log. Lower is more severe, matching the
// convention used by the logging packages this decoder's diagnostics are
// modeled on.
const (
	Fatal int8 = iota
	Error
	Warning
	Info
	Debug
)

// Logger is the logging sink the decoder calls into. Implementations may
// filter by level, format however they like, and fan out to multiple
// destinations.
type Logger interface {
	SetLevel(int8)
	Log(level int8, message string, params ...interface{})
}

// Discard is a Logger that drops everything. It is the default when no
// Logger is supplied to New.
var Discard Logger = discard{}

type discard struct{}

func (discard) SetLevel(int8)                             {}
func (discard) Log(int8, string, ...interface{})           {}

// slogLogger adapts the standard library's structured logger to Logger,
// filtering on level before formatting params.
type slogLogger struct {
	mu    sync.Mutex
	level int8
	inner *slog.Logger
}

// NewSlogLogger builds a Logger backed by log/slog, writing to w at the
// given minimum level. A level of Info or Debug is appropriate for
// development; production callers typically want Warning.
func NewSlogLogger(w io.Writer, level int8) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &slogLogger{
		level: level,
		inner: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
}

func (l *slogLogger) SetLevel(level int8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *slogLogger) Log(level int8, message string, params ...interface{}) {
	l.mu.Lock()
	cur := l.level
	l.mu.Unlock()
	if level > cur {
		return
	}
	args := make([]interface{}, 0, len(params))
	for i := 0; i+1 < len(params); i += 2 {
		key, ok := params[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", params[i])
		}
		args = append(args, key, params[i+1])
	}
	switch {
	case level <= Error:
		l.inner.Error(message, args...)
	case level == Warning:
		l.inner.Warn(message, args...)
	case level == Info:
		l.inner.Info(message, args...)
	default:
		l.inner.Debug(message, args...)
	}
}

// RotatingFileConfig configures a size- and age-bounded log file, written
// through lumberjack so long-running decode services don't need an external
// log rotation daemon.
type RotatingFileConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewRotatingFileLogger builds a Logger that writes to a lumberjack-managed
// rotating file, optionally tee'd to an additional writer (e.g. os.Stderr
// during development).
func NewRotatingFileLogger(cfg RotatingFileConfig, level int8, tee io.Writer) Logger {
	fileSink := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	var w io.Writer = fileSink
	if tee != nil {
		w = io.MultiWriter(fileSink, tee)
	}
	return NewSlogLogger(w, level)
}

// NewCorrelationID returns a fresh identifier for tagging all log lines and
// stats emitted during a single Decode call, so concurrent decodes on a
// shared Logger can be told apart.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Stats accumulates per-decode counters useful for diagnosing malformed or
// unusually-shaped streams: how much of each subband decoded as a flat run
// of zeros, and the distribution of run lengths seen by the entropy stage.
// It is safe for concurrent use by the worker pool in package schedule.
type Stats struct {
	mu              sync.Mutex
	CorrelationID   string
	BandsDecoded    int
	ZeroBandCount   int
	RunLengthCounts map[int]int
	EscapeCount     int
	MaxRunLength    int
}

// NewStats returns a Stats instance tagged with a fresh correlation ID.
func NewStats() *Stats {
	return &Stats{
		CorrelationID:   NewCorrelationID(),
		RunLengthCounts: make(map[int]int),
	}
}

// RecordBand updates the histogram after a subband finishes decoding.
// allZero indicates every coefficient in the band was zero, which is common
// for high-frequency bands at low bitrates and worth tracking separately
// from the run-length histogram.
func (s *Stats) RecordBand(allZero bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BandsDecoded++
	if allZero {
		s.ZeroBandCount++
	}
}

// RecordRun tallies one zero-run emitted by the entropy decoder.
func (s *Stats) RecordRun(length int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RunLengthCounts[length]++
	if length > s.MaxRunLength {
		s.MaxRunLength = length
	}
}

// RecordEscape tallies one escape-coded literal.
func (s *Stats) RecordEscape() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EscapeCount++
}

// Snapshot returns a copy of the counters safe to inspect without holding
// the internal lock.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	runCopy := make(map[int]int, len(s.RunLengthCounts))
	for k, v := range s.RunLengthCounts {
		runCopy[k] = v
	}
	return Stats{
		CorrelationID:   s.CorrelationID,
		BandsDecoded:    s.BandsDecoded,
		ZeroBandCount:   s.ZeroBandCount,
		RunLengthCounts: runCopy,
		EscapeCount:     s.EscapeCount,
		MaxRunLength:    s.MaxRunLength,
	}
}
