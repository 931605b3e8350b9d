package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/samber/lo"

	"github.com/germanamz/parley/pkg/chats/identity"
)

// rosterModel is the sidebar: every other user, an online marker and the
// "online only" filter.
type rosterModel struct {
	users      []identity.Identity
	online     map[string]struct{}
	onlineOnly bool
	loading    bool
	selectedID string
	cursor     int
	width      int
	height     int
}

func (r *rosterModel) setUsers(users []identity.Identity, loading bool) {
	r.users = users
	r.loading = loading
	r.clamp()
}

func (r *rosterModel) setOnline(ids []string) {
	r.online = lo.Keyify(ids)
	r.clamp()
}

func (r *rosterModel) toggleOnlineOnly() {
	r.onlineOnly = !r.onlineOnly
	r.cursor = 0
}

func (r rosterModel) isOnline(id string) bool {
	_, ok := r.online[id]
	return ok
}

// visible returns the entries shown under the current filter.
func (r rosterModel) visible() []identity.Identity {
	if !r.onlineOnly {
		return r.users
	}
	return lo.Filter(r.users, func(u identity.Identity, _ int) bool { return r.isOnline(u.ID) })
}

// onlineCount excludes self; the roster never holds the caller.
func (r rosterModel) onlineCount() int {
	return lo.CountBy(r.users, func(u identity.Identity) bool { return r.isOnline(u.ID) })
}

func (r *rosterModel) move(delta int) {
	r.cursor += delta
	r.clamp()
}

func (r *rosterModel) clamp() {
	n := len(r.visible())
	r.cursor = min(max(r.cursor, 0), max(n-1, 0))
}

// current returns the entry under the cursor.
func (r rosterModel) current() (identity.Identity, bool) {
	vis := r.visible()
	if len(vis) == 0 {
		return identity.Identity{}, false
	}
	return vis[r.cursor], true
}

func (r rosterModel) View(focused bool) string {
	inner := max(r.width-2, 8)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Contacts"))
	sb.WriteByte('\n')

	filter := "all"
	if r.onlineOnly {
		filter = "online only"
	}
	sb.WriteString(dimStyle.Render(fmt.Sprintf("%d online · %s", r.onlineCount(), filter)))
	sb.WriteString("\n\n")

	vis := r.visible()
	switch {
	case r.loading && len(r.users) == 0:
		sb.WriteString(dimStyle.Render("Loading..."))
	case len(vis) == 0 && r.onlineOnly:
		sb.WriteString(dimStyle.Render("No online users"))
	case len(vis) == 0:
		sb.WriteString(dimStyle.Render("No contacts"))
	}

	// Keep the cursor on screen.
	rows := max(r.height-5, 1)
	start := max(r.cursor-rows+1, 0)
	end := min(start+rows, len(vis))

	for i := start; i < end; i++ {
		u := vis[i]
		dot := offlineDot
		if r.isOnline(u.ID) {
			dot = onlineDot
		}

		name := runewidth.Truncate(u.DisplayName(), inner-4, "…")
		switch {
		case focused && i == r.cursor:
			name = rosterCurStyle.Render(name)
		case u.ID == r.selectedID:
			name = rosterSelStyle.Render(name)
		}

		fmt.Fprintf(&sb, "%s %s", dot, name)
		if i < end-1 {
			sb.WriteByte('\n')
		}
	}

	border := rosterBorder
	if focused {
		border = rosterFocused
	}

	return border.Width(inner).Height(max(r.height-2, 1)).Render(lipgloss.NewStyle().MaxWidth(inner).Render(sb.String()))
}
