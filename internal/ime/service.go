package ime

import (
	"fmt"
	"log/slog"

	"github.com/wayim/wayim/internal/desktop"
	"github.com/wayim/wayim/internal/eventloop"
	"github.com/wayim/wayim/internal/focus"
	"github.com/wayim/wayim/internal/handlertable"
)

// Group is one input-method group. Layout is the keyboard layout the group
// assumes, either a bare layout ("us") or layout and variant separated by a
// tilde ("de~neo").
type Group struct {
	Name         string
	Layout       string
	InputMethods []string
}

// XkbParameters are the keyboard parameters applied to one display.
type XkbParameters struct {
	Rules   string
	Model   string
	Options string
}

// Options configures a Service.
type Options struct {
	Logger  *slog.Logger
	Loop    *eventloop.Loop
	Focus   *focus.Manager
	Desktop desktop.Type
	Session desktop.Session
	Groups  []Group
}

// Service holds the input-method runtime state shared by the display and
// layout subsystems. It is confined to the event loop goroutine; callers on
// other goroutines must hop over via eventloop.Post.
type Service struct {
	logger  *slog.Logger
	loop    *eventloop.Loop
	focus   *focus.Manager
	desktop desktop.Type
	session desktop.Session

	watchers map[EventType]*handlertable.Table[func(Event)]

	groups    []Group
	current   string
	xkbParams map[string]XkbParameters
}

// NewService builds a service from the given options. A nil logger falls
// back to slog.Default(), a nil focus manager is created on the spot, and
// an empty group list is seeded with a default group.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fm := opts.Focus
	if fm == nil {
		fm = focus.NewManager(logger)
	}
	groups := make([]Group, len(opts.Groups))
	copy(groups, opts.Groups)
	if len(groups) == 0 {
		groups = []Group{{Name: "Default", Layout: "us"}}
	}
	return &Service{
		logger:    logger,
		loop:      opts.Loop,
		focus:     fm,
		desktop:   opts.Desktop,
		session:   opts.Session,
		watchers:  make(map[EventType]*handlertable.Table[func(Event)]),
		groups:    groups,
		current:   groups[0].Name,
		xkbParams: make(map[string]XkbParameters),
	}
}

// Desktop returns the desktop environment detected at startup.
func (s *Service) Desktop() desktop.Type {
	return s.desktop
}

// Session returns the session type detected at startup.
func (s *Service) Session() desktop.Session {
	return s.session
}

// FocusManager returns the focus manager shared with the display layer.
func (s *Service) FocusManager() *focus.Manager {
	return s.focus
}

// WatchEvent subscribes fn to events of the given type. The returned entry
// revokes the subscription; revoking during dispatch is allowed.
func (s *Service) WatchEvent(t EventType, fn func(Event)) *handlertable.Entry[func(Event)] {
	table, ok := s.watchers[t]
	if !ok {
		table = handlertable.New[func(Event)]()
		s.watchers[t] = table
	}
	return table.Add(fn)
}

// PostEvent delivers ev synchronously to every watcher of its type, in
// subscription order.
func (s *Service) PostEvent(ev Event) {
	table, ok := s.watchers[ev.Type()]
	if !ok {
		return
	}
	for fn := range table.View() {
		fn(ev)
	}
}

// Groups returns a copy of the configured input-method groups.
func (s *Service) Groups() []Group {
	out := make([]Group, len(s.groups))
	copy(out, s.groups)
	return out
}

// CurrentGroup returns the name of the active group.
func (s *Service) CurrentGroup() string {
	return s.current
}

// CurrentLayout returns the keyboard layout of the active group.
func (s *Service) CurrentLayout() string {
	if i, ok := s.findGroup(s.current); ok {
		return s.groups[i].Layout
	}
	return ""
}

func (s *Service) findGroup(name string) (int, bool) {
	for i, g := range s.groups {
		if g.Name == name {
			return i, true
		}
	}
	return 0, false
}

// SetCurrentGroup switches the active group and fires the about-to-change
// and changed events around the switch. Switching to the active group is a
// no-op.
func (s *Service) SetCurrentGroup(name string) error {
	if _, ok := s.findGroup(name); !ok {
		return fmt.Errorf("ime: unknown group %q", name)
	}
	if name == s.current {
		return nil
	}
	previous := s.current
	s.PostEvent(GroupAboutToChangeEvent{Current: previous, Next: name})
	s.current = name
	s.logger.Info("input method group changed", "previous", previous, "current", name)
	s.PostEvent(GroupChangedEvent{Previous: previous, Current: name})
	return nil
}

// AddGroup appends a new group to the configuration.
func (s *Service) AddGroup(g Group) error {
	if g.Name == "" {
		return fmt.Errorf("ime: group name must not be empty")
	}
	if _, ok := s.findGroup(g.Name); ok {
		return fmt.Errorf("ime: group %q already exists", g.Name)
	}
	s.groups = append(s.groups, g)
	s.logger.Debug("input method group added", "group", g.Name, "layout", g.Layout)
	return nil
}

// RemoveGroup drops a group. The last group cannot be removed; removing the
// active group first switches to the next remaining one.
func (s *Service) RemoveGroup(name string) error {
	i, ok := s.findGroup(name)
	if !ok {
		return fmt.Errorf("ime: unknown group %q", name)
	}
	if len(s.groups) == 1 {
		return fmt.Errorf("ime: cannot remove the last group")
	}
	if s.current == name {
		next := s.groups[0].Name
		if next == name {
			next = s.groups[1].Name
		}
		if err := s.SetCurrentGroup(next); err != nil {
			return err
		}
		i, _ = s.findGroup(name)
	}
	s.groups = append(s.groups[:i], s.groups[i+1:]...)
	s.logger.Debug("input method group removed", "group", name)
	return nil
}

// SetXkbParameters records the keyboard parameters for a display and
// announces the change.
func (s *Service) SetXkbParameters(display, rules, model, options string) {
	params := XkbParameters{Rules: rules, Model: model, Options: options}
	s.xkbParams[display] = params
	s.logger.Debug("xkb parameters set",
		"display", display, "rules", rules, "model", model, "options", options)
	s.PostEvent(XkbParametersChangedEvent{Display: display, Params: params})
}

// XkbParameters returns the recorded keyboard parameters for a display.
func (s *Service) XkbParameters(display string) (XkbParameters, bool) {
	params, ok := s.xkbParams[display]
	return params, ok
}

// CreateContext registers a new input context for a program on the named
// display.
func (s *Service) CreateContext(display, program string) (*focus.Context, error) {
	group, ok := s.focus.Group(focus.DisplayGroupName(display))
	if !ok {
		return nil, fmt.Errorf("ime: no focus group for display %q", display)
	}
	c, err := group.AddContext(program)
	if err != nil {
		return nil, err
	}
	s.PostEvent(ContextCreatedEvent{Display: display, Context: c})
	return c, nil
}

// FocusContext moves the display's focus to the context with the given id.
func (s *Service) FocusContext(display, id string) error {
	group, ok := s.focus.Group(focus.DisplayGroupName(display))
	if !ok {
		return fmt.Errorf("ime: no focus group for display %q", display)
	}
	if err := group.Focus(id); err != nil {
		return err
	}
	s.PostEvent(ContextFocusedEvent{Display: display, Context: group.Focused()})
	return nil
}

// DestroyContext removes an input context from the named display.
func (s *Service) DestroyContext(display, id string) error {
	group, ok := s.focus.Group(focus.DisplayGroupName(display))
	if !ok {
		return fmt.Errorf("ime: no focus group for display %q", display)
	}
	if !group.RemoveContext(id) {
		return fmt.Errorf("ime: no context %q on display %q", id, display)
	}
	s.PostEvent(ContextDestroyedEvent{Display: display, ContextID: id})
	return nil
}

// Exit asks the event loop to stop. The daemon's shutdown path takes over
// from there.
func (s *Service) Exit() {
	s.logger.Info("service exit requested")
	if s.loop != nil {
		s.loop.Quit()
	}
}
