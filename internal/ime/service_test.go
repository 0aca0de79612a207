package ime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayim/wayim/internal/desktop"
	"github.com/wayim/wayim/internal/focus"
)

func newTestService(groups ...Group) *Service {
	return NewService(Options{
		Desktop: desktop.KDE,
		Session: desktop.SessionWayland,
		Groups:  groups,
	})
}

func TestNewServiceSeedsDefaultGroup(t *testing.T) {
	s := newTestService()

	groups := s.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, "Default", groups[0].Name)
	assert.Equal(t, "us", groups[0].Layout)
	assert.Equal(t, "Default", s.CurrentGroup())
	assert.Equal(t, "us", s.CurrentLayout())
}

func TestSetCurrentGroupFiresEventsInOrder(t *testing.T) {
	s := newTestService(
		Group{Name: "english", Layout: "us"},
		Group{Name: "german", Layout: "de~neo"},
	)

	var sequence []string
	s.WatchEvent(EventGroupAboutToChange, func(ev Event) {
		e := ev.(GroupAboutToChangeEvent)
		sequence = append(sequence, "about:"+e.Current+">"+e.Next)
		assert.Equal(t, "english", s.CurrentGroup(), "switch not yet applied")
	})
	s.WatchEvent(EventGroupChanged, func(ev Event) {
		e := ev.(GroupChangedEvent)
		sequence = append(sequence, "changed:"+e.Previous+">"+e.Current)
		assert.Equal(t, "german", s.CurrentGroup(), "switch already applied")
	})

	require.NoError(t, s.SetCurrentGroup("german"))
	assert.Equal(t, []string{"about:english>german", "changed:english>german"}, sequence)
	assert.Equal(t, "de~neo", s.CurrentLayout())
}

func TestSetCurrentGroupNoopAndUnknown(t *testing.T) {
	s := newTestService(Group{Name: "english", Layout: "us"})

	fired := 0
	s.WatchEvent(EventGroupChanged, func(Event) { fired++ })

	require.NoError(t, s.SetCurrentGroup("english"))
	assert.Zero(t, fired, "switching to the active group is silent")

	assert.Error(t, s.SetCurrentGroup("missing"))
	assert.Equal(t, "english", s.CurrentGroup())
}

func TestWatcherSubscriptionOrderAndRevocation(t *testing.T) {
	s := newTestService(
		Group{Name: "english", Layout: "us"},
		Group{Name: "french", Layout: "fr"},
	)

	var order []int
	first := s.WatchEvent(EventGroupChanged, func(Event) { order = append(order, 1) })
	s.WatchEvent(EventGroupChanged, func(Event) { order = append(order, 2) })

	require.NoError(t, s.SetCurrentGroup("french"))
	assert.Equal(t, []int{1, 2}, order)

	first.Remove()
	order = nil
	require.NoError(t, s.SetCurrentGroup("english"))
	assert.Equal(t, []int{2}, order)
}

func TestAddRemoveGroups(t *testing.T) {
	s := newTestService(Group{Name: "english", Layout: "us"})

	require.NoError(t, s.AddGroup(Group{Name: "german", Layout: "de"}))
	assert.Error(t, s.AddGroup(Group{Name: "german", Layout: "de"}), "duplicate name")
	assert.Error(t, s.AddGroup(Group{Layout: "de"}), "empty name")

	// Removing the active group switches to the next remaining one first.
	var switched []string
	s.WatchEvent(EventGroupChanged, func(ev Event) {
		switched = append(switched, ev.(GroupChangedEvent).Current)
	})
	require.NoError(t, s.RemoveGroup("english"))
	assert.Equal(t, []string{"german"}, switched)
	assert.Equal(t, "german", s.CurrentGroup())

	assert.Error(t, s.RemoveGroup("german"), "last group is not removable")
	assert.Error(t, s.RemoveGroup("missing"))
}

func TestSetXkbParameters(t *testing.T) {
	s := newTestService()

	var got XkbParametersChangedEvent
	s.WatchEvent(EventXkbParametersChanged, func(ev Event) {
		got = ev.(XkbParametersChangedEvent)
	})

	s.SetXkbParameters("wayland-0", "evdev", "pc101", "grp:alt_shift_toggle")

	params, ok := s.XkbParameters("wayland-0")
	require.True(t, ok)
	assert.Equal(t, XkbParameters{Rules: "evdev", Model: "pc101", Options: "grp:alt_shift_toggle"}, params)
	assert.Equal(t, "wayland-0", got.Display)
	assert.Equal(t, params, got.Params)

	_, ok = s.XkbParameters("wayland-1")
	assert.False(t, ok)
}

func TestContextLifecycleEvents(t *testing.T) {
	s := newTestService()
	_, err := s.FocusManager().CreateGroup(focus.DisplayGroupName("wayland-0"))
	require.NoError(t, err)

	var events []EventType
	for _, et := range []EventType{EventContextCreated, EventContextFocused, EventContextDestroyed} {
		s.WatchEvent(et, func(ev Event) { events = append(events, ev.Type()) })
	}

	c, err := s.CreateContext("wayland-0", "editor")
	require.NoError(t, err)
	require.NoError(t, s.FocusContext("wayland-0", c.ID()))
	assert.True(t, c.Focused())
	require.NoError(t, s.DestroyContext("wayland-0", c.ID()))

	assert.Equal(t, []EventType{EventContextCreated, EventContextFocused, EventContextDestroyed}, events)

	_, err = s.CreateContext("wayland-9", "editor")
	assert.Error(t, err, "unknown display")
	assert.Error(t, s.FocusContext("wayland-0", c.ID()), "destroyed context")
	assert.Error(t, s.DestroyContext("wayland-0", c.ID()))
}

func TestExitWithoutLoop(t *testing.T) {
	s := newTestService()
	s.Exit() // nil loop must not panic
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "group-changed", EventGroupChanged.String())
	assert.Equal(t, "unknown", EventType(99).String())
}
