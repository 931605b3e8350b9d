package main

import "github.com/charmbracelet/lipgloss"

// Centralized style definitions for the TUI.
var (
	// Roster styles.
	rosterBorder   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8"))
	rosterFocused  = rosterBorder.BorderForeground(lipgloss.Color("4"))
	rosterCurStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	rosterSelStyle = lipgloss.NewStyle().Underline(true)
	onlineDot      = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Render("●") // green
	offlineDot     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("○") // gray

	// Conversation styles.
	headerStyle  = lipgloss.NewStyle().Bold(true)
	mineStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")) // blue
	theirsStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	imageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Italic(true)
	messageBlock = lipgloss.NewStyle().PaddingLeft(2)

	// Input styles.
	focusedBorder  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("2")) // green
	disabledBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8"))

	// General utility styles.
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)
