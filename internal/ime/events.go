package ime

import "github.com/wayim/wayim/internal/focus"

// EventType identifies a service event stream.
type EventType int

const (
	// EventGroupAboutToChange fires before the current input-method group
	// switches; the current group is still active when watchers run.
	EventGroupAboutToChange EventType = iota
	// EventGroupChanged fires after the switch completed.
	EventGroupChanged
	// EventContextCreated fires when a client input context registers.
	EventContextCreated
	// EventContextFocused fires when a context takes its group's focus.
	EventContextFocused
	// EventContextDestroyed fires when a context is removed.
	EventContextDestroyed
	// EventXkbParametersChanged fires when a display's keyboard parameters
	// are updated.
	EventXkbParametersChanged
)

var eventTypeNames = map[EventType]string{
	EventGroupAboutToChange:   "group-about-to-change",
	EventGroupChanged:         "group-changed",
	EventContextCreated:       "context-created",
	EventContextFocused:       "context-focused",
	EventContextDestroyed:     "context-destroyed",
	EventXkbParametersChanged: "xkb-parameters-changed",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is implemented by every event payload.
type Event interface {
	Type() EventType
}

// GroupAboutToChangeEvent announces an imminent group switch.
type GroupAboutToChangeEvent struct {
	Current string
	Next    string
}

func (GroupAboutToChangeEvent) Type() EventType { return EventGroupAboutToChange }

// GroupChangedEvent announces a completed group switch.
type GroupChangedEvent struct {
	Previous string
	Current  string
}

func (GroupChangedEvent) Type() EventType { return EventGroupChanged }

// ContextCreatedEvent announces a new input context on a display.
type ContextCreatedEvent struct {
	Display string
	Context *focus.Context
}

func (ContextCreatedEvent) Type() EventType { return EventContextCreated }

// ContextFocusedEvent announces a focus change on a display.
type ContextFocusedEvent struct {
	Display string
	Context *focus.Context
}

func (ContextFocusedEvent) Type() EventType { return EventContextFocused }

// ContextDestroyedEvent announces a removed input context.
type ContextDestroyedEvent struct {
	Display   string
	ContextID string
}

func (ContextDestroyedEvent) Type() EventType { return EventContextDestroyed }

// XkbParametersChangedEvent announces updated keyboard parameters for a
// display.
type XkbParametersChangedEvent struct {
	Display string
	Params  XkbParameters
}

func (XkbParametersChangedEvent) Type() EventType { return EventXkbParametersChanged }
