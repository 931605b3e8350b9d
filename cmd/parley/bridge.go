package main

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/germanamz/parley/pkg/events"
	"github.com/germanamz/parley/pkg/notify"
)

// startBridge forwards store events to the program. The goroutine only calls
// p.Send; it never touches model state. The returned function stops it and
// waits for it to exit.
func startBridge(ctx context.Context, p *tea.Program, bus *events.Bus, buffer int) context.CancelFunc {
	bridgeCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	sub := bus.Subscribe(buffer)

	wg.Go(func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-bridgeCtx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				p.Send(bridgeMsg(ev))
			}
		}
	})

	return func() {
		cancel()
		wg.Wait()
	}
}

func bridgeMsg(ev events.Event) tea.Msg {
	if ev.Kind == events.Notice {
		if n, ok := ev.Data.(notify.Note); ok {
			return noticeMsg{note: n}
		}
	}
	return storeChangedMsg{kind: ev.Kind}
}
