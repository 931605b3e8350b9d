// Package notify defines the notification sink the stores report outcomes to.
// A sink is the client's equivalent of a toast: one-line success or error
// texts, no structure beyond the level.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/germanamz/parley/pkg/events"
)

// Level is the severity of a note.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Note is a single notification.
type Note struct {
	Level Level
	Text  string
	At    time.Time
}

// Sink receives user-facing notifications. Implementations must be safe for
// concurrent use.
type Sink interface {
	Success(text string)
	Error(text string)
}

// Discard drops every note.
type Discard struct{}

func (Discard) Success(string) {}
func (Discard) Error(string)   {}

// Log writes notes to a structured logger.
type Log struct {
	log *slog.Logger
}

// NewLog returns a sink that logs successes at info and errors at warn.
func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Success(text string) { l.log.Info("notify", "level", LevelSuccess, "text", text) }
func (l *Log) Error(text string)   { l.log.Warn("notify", "level", LevelError, "text", text) }

// Bus publishes every note as an events.Notice event whose Data is a Note.
type Bus struct {
	bus *events.Bus
}

// NewBus returns a sink publishing to bus.
func NewBus(bus *events.Bus) *Bus {
	return &Bus{bus: bus}
}

func (b *Bus) Success(text string) { b.publish(LevelSuccess, text) }
func (b *Bus) Error(text string)   { b.publish(LevelError, text) }

func (b *Bus) publish(level Level, text string) {
	now := time.Now()
	b.bus.Publish(events.Event{
		Kind:      events.Notice,
		Timestamp: now,
		Data:      Note{Level: level, Text: text, At: now},
	})
}

// Multi forwards every note to each sink in order.
type Multi []Sink

func (m Multi) Success(text string) {
	for _, s := range m {
		s.Success(text)
	}
}

func (m Multi) Error(text string) {
	for _, s := range m {
		s.Error(text)
	}
}

// Recorder keeps every note in memory. The zero value is ready to use.
type Recorder struct {
	mu    sync.Mutex
	notes []Note
}

func (r *Recorder) Success(text string) { r.add(LevelSuccess, text) }
func (r *Recorder) Error(text string)   { r.add(LevelError, text) }

func (r *Recorder) add(level Level, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, Note{Level: level, Text: text, At: time.Now()})
}

// Notes returns a copy of all recorded notes.
func (r *Recorder) Notes() []Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Note, len(r.notes))
	copy(cp, r.notes)
	return cp
}

// Texts returns the texts of recorded notes with the given level.
func (r *Recorder) Texts(level Level) []string {
	var out []string
	for _, n := range r.Notes() {
		if n.Level == level {
			out = append(out, n.Text)
		}
	}
	return out
}
