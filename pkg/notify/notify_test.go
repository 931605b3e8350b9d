package notify

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/germanamz/parley/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Success("Logged in successfully")
	r.Error("Invalid credentials")

	notes := r.Notes()
	require.Len(t, notes, 2)
	assert.Equal(t, LevelSuccess, notes[0].Level)
	assert.Equal(t, []string{"Invalid credentials"}, r.Texts(LevelError))
	assert.Equal(t, []string{"Logged in successfully"}, r.Texts(LevelSuccess))
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	s := NewLog(log)
	s.Success("saved")
	s.Error("failed")

	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "text=saved")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "text=failed")
}

func TestBus(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(2)
	defer bus.Unsubscribe(sub)

	NewBus(bus).Error("Server error")

	select {
	case ev := <-sub.C:
		assert.Equal(t, events.Notice, ev.Kind)
		note, ok := ev.Data.(Note)
		require.True(t, ok)
		assert.Equal(t, LevelError, note.Level)
		assert.Equal(t, "Server error", note.Text)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notice")
	}
}

func TestMulti(t *testing.T) {
	var a, b Recorder
	m := Multi{&a, &b, Discard{}}

	m.Success("ok")
	m.Error("bad")

	assert.Len(t, a.Notes(), 2)
	assert.Len(t, b.Notes(), 2)
}
