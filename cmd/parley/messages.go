package main

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/germanamz/parley/pkg/events"
	"github.com/germanamz/parley/pkg/notify"
)

// storeChangedMsg tells the model to re-read store snapshots.
type storeChangedMsg struct {
	kind events.Kind
}

// noticeMsg carries a notification from the stores.
type noticeMsg struct {
	note notify.Note
}

// noticeExpiredMsg clears the notice bar if seq is still the newest notice.
type noticeExpiredMsg struct {
	seq int
}

// opDoneMsg is returned by tea.Cmds that call into the client. Failures have
// already been reported through the notification sink.
type opDoneMsg struct {
	op  string
	err error
}

// loggedOutMsg ends the program after a logout.
type loggedOutMsg struct{}

// programReadyMsg passes the *tea.Program to the model so it can start the bridge.
type programReadyMsg struct {
	program *tea.Program
}
