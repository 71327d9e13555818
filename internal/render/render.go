// Package render turns the event bus's workflow/step/agent/cost stream
// into operator-facing output. Three renderers implement the same
// Renderer interface: terminal (a scrolling bubbletea view), log
// (structured lines through goa.design/clue/log), and none (silent).
// The run facade selects one from --renderer / config and registers it
// as a bus subscriber for the lifetime of the run.
package render

import (
	"context"
	"fmt"

	"github.com/borgesius/babylon-scriptorium/internal/events"
)

// Renderer consumes bus events and is itself a Subscriber; Close releases
// any resources (the terminal renderer's running bubbletea program).
type Renderer interface {
	events.Subscriber
	Close() error
}

// Kind names the three renderer variants exposed on the CLI.
type Kind string

const (
	KindTerminal Kind = "terminal"
	KindLog      Kind = "log"
	KindNone     Kind = "none"
)

// New constructs the renderer named by kind and registers it with bus.
// The returned Subscription should be closed alongside the Renderer when
// the run ends.
func New(kind Kind, bus events.Bus) (Renderer, events.Subscription, error) {
	var r Renderer
	switch kind {
	case KindTerminal:
		r = newTerminalRenderer()
	case KindLog:
		r = newLogRenderer()
	case KindNone, "":
		r = noneRenderer{}
	default:
		return nil, nil, fmt.Errorf("render: unknown renderer kind %q", kind)
	}
	sub, err := bus.Register(r)
	if err != nil {
		_ = r.Close()
		return nil, nil, fmt.Errorf("render: register %s renderer: %w", kind, err)
	}
	return r, sub, nil
}

type noneRenderer struct{}

func (noneRenderer) HandleEvent(context.Context, events.Event) error { return nil }
func (noneRenderer) Close() error                                    { return nil }
