// Package enginelog scopes a zerolog.Logger to a single rule invocation,
// the way the teacher codebase's review logger scoped a log file to a
// single trigger-review run — except here nothing touches disk, and the
// scope is torn down when the invocation settles rather than kept open
// as global mutable state.
package enginelog

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogMode selects where guest console calls land, per §4.F.
type LogMode string

const (
	// ModeDrop discards guest console calls; the default.
	ModeDrop LogMode = "drop"
	// ModeConsole forwards guest console calls to the host's own logger.
	ModeConsole LogMode = "console"
	// ModeCapture appends guest console calls to the returned record.
	ModeCapture LogMode = "capture"
)

// Entry is one captured console call, in call order.
type Entry struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

// Scope is a logger bound to one runRule invocation.
type Scope struct {
	mode         LogMode
	invocationID string
	host         zerolog.Logger
	captured     []Entry
}

// New creates a Scope for one invocation. host is the process-wide
// zerolog.Logger; a fresh invocation_id field is layered on top of it so
// concurrent invocations stay distinguishable in interleaved output.
func New(host zerolog.Logger, mode LogMode) *Scope {
	id := uuid.NewString()
	return &Scope{
		mode:         mode,
		invocationID: id,
		host:         host.With().Str("invocation_id", id).Logger(),
	}
}

// NewDiscarding creates a Scope backed by a logger that writes nowhere,
// for tests and for ModeDrop callers that never inspect host output.
func NewDiscarding(mode LogMode) *Scope {
	return New(zerolog.New(io.Discard), mode)
}

// InvocationID returns the correlation id minted for this scope. It is
// never persisted and never guest-visible; it exists purely so a host
// operator can grep one invocation's interleaved log lines back out.
func (s *Scope) InvocationID() string {
	return s.invocationID
}

// Console records a guest console.<level> call per the active LogMode.
func (s *Scope) Console(level, msg string) {
	switch s.mode {
	case ModeConsole:
		s.emitHost(level, msg)
	case ModeCapture:
		s.captured = append(s.captured, Entry{Level: level, Msg: msg})
	case ModeDrop:
		// no-op by design
	}
}

func (s *Scope) emitHost(level, msg string) {
	switch level {
	case "debug":
		s.host.Debug().Msg(msg)
	case "warn":
		s.host.Warn().Msg(msg)
	case "error":
		s.host.Error().Msg(msg)
	default:
		s.host.Info().Msg(msg)
	}
}

// Captured returns the accumulated log entries. It is only meaningful in
// ModeCapture and is discarded entirely by the interpreter on a failed
// or timed-out invocation, per §7.
func (s *Scope) Captured() []Entry {
	if s.captured == nil {
		return []Entry{}
	}
	return s.captured
}

// HostDebugf writes a host-only diagnostic line, never guest-visible and
// never part of Captured — used for things like the script fingerprint
// note logged once per invocation.
func (s *Scope) HostDebugf(format string, args ...any) {
	s.host.Debug().Msgf(format, args...)
}

// NewHostLogger builds the process-wide zerolog.Logger the rest of the
// engine (config loading, source adapters, the CLI) logs through,
// mirroring the console-writer setup common across the teacher's
// dependency stack.
func NewHostLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
