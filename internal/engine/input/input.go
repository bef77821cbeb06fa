// Package input handles SDL2 input events.
package input

import (
	"fmt"

	"github.com/veandco/go-sdl2/sdl"
)

// EventType classifies a processed event.
type EventType int

const (
	EventNone EventType = iota
	EventQuit
	EventWindowResize
	EventKeyDown
	EventKeyUp
)

// Event represents a processed input event.
type Event struct {
	Type   EventType
	Key    sdl.Scancode
	Repeat bool
	Width  int
	Height int
}

// Command is a viewer action bound to a key.
type Command int

const (
	CommandNone Command = iota
	CommandNext
	CommandPrev
	CommandRetry
	CommandQuit
)

func (c Command) String() string {
	switch c {
	case CommandNext:
		return "next"
	case CommandPrev:
		return "prev"
	case CommandRetry:
		return "retry"
	case CommandQuit:
		return "quit"
	}
	return "none"
}

// Keymap binds scancodes to commands.
type Keymap map[sdl.Scancode]Command

// DefaultKeymap is PageDown/PageUp navigation, R to retry, Escape to quit.
func DefaultKeymap() Keymap {
	return Keymap{
		sdl.SCANCODE_PAGEDOWN: CommandNext,
		sdl.SCANCODE_PAGEUP:   CommandPrev,
		sdl.SCANCODE_R:        CommandRetry,
		sdl.SCANCODE_ESCAPE:   CommandQuit,
	}
}

// ParseKeymap builds a keymap from SDL key names such as "PageDown".
// Escape always quits.
func ParseKeymap(next, prev, retry string) (Keymap, error) {
	km := Keymap{sdl.SCANCODE_ESCAPE: CommandQuit}
	for _, b := range []struct {
		name string
		cmd  Command
	}{
		{next, CommandNext},
		{prev, CommandPrev},
		{retry, CommandRetry},
	} {
		if b.name == "" {
			continue
		}
		sc := sdl.GetScancodeFromName(b.name)
		if sc == sdl.SCANCODE_UNKNOWN {
			return nil, fmt.Errorf("unknown key name %q for %s", b.name, b.cmd)
		}
		km[sc] = b.cmd
	}
	return km, nil
}

// Commands returns the commands triggered by key presses in events, in order.
func (km Keymap) Commands(events []Event) []Command {
	var cmds []Command
	for _, e := range events {
		switch e.Type {
		case EventQuit:
			cmds = append(cmds, CommandQuit)
		case EventKeyDown:
			if cmd, ok := km[e.Key]; ok {
				cmds = append(cmds, cmd)
			}
		}
	}
	return cmds
}

// Input handles all input processing.
type Input struct {
	events []Event
}

// New creates a new input handler.
func New() *Input {
	return &Input{
		events: make([]Event, 0, 16),
	}
}

// Update polls SDL events and converts them to viewer events.
// Returns true if the window was closed.
func (i *Input) Update() bool {
	i.events = i.events[:0]

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			i.events = append(i.events, Event{Type: EventQuit})
			return true

		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_RESIZED || e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
				i.events = append(i.events, Event{
					Type:   EventWindowResize,
					Width:  int(e.Data1),
					Height: int(e.Data2),
				})
			}

		case *sdl.KeyboardEvent:
			ev := Event{Key: e.Keysym.Scancode, Repeat: e.Repeat != 0}
			if e.Type == sdl.KEYDOWN {
				ev.Type = EventKeyDown
			} else {
				ev.Type = EventKeyUp
			}
			i.events = append(i.events, ev)
		}
	}

	return false
}

// Events returns the events from the last Update.
func (i *Input) Events() []Event {
	return i.events
}
