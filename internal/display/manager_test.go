package display

import (
	"context"
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayim/wayim/internal/desktop"
	"github.com/wayim/wayim/internal/eventloop"
	"github.com/wayim/wayim/internal/focus"
	"github.com/wayim/wayim/internal/ime"
	"github.com/wayim/wayim/internal/wayland"
)

const defaultSocket = "wayland-test"

// fakeRuntime owns a throwaway XDG_RUNTIME_DIR holding compositor sockets.
// The default display name resolves to defaultSocket.
type fakeRuntime struct {
	t   *testing.T
	dir string
}

func newFakeRuntime(t *testing.T) *fakeRuntime {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("WAYLAND_DISPLAY", defaultSocket)
	return &fakeRuntime{t: t, dir: dir}
}

func (f *fakeRuntime) listen(name string) net.Listener {
	f.t.Helper()
	listener, err := net.Listen("unix", filepath.Join(f.dir, name))
	require.NoError(f.t, err)
	f.t.Cleanup(func() { listener.Close() })
	return listener
}

func accept(t *testing.T, listener net.Listener) net.Conn {
	t.Helper()
	conn, err := listener.Accept()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeEvent(t *testing.T, conn net.Conn, object uint32, opcode uint16, payload ...[]byte) {
	t.Helper()
	size := 8
	for _, p := range payload {
		size += len(p)
	}
	frame := make([]byte, 8, size)
	binary.LittleEndian.PutUint32(frame[0:4], object)
	binary.LittleEndian.PutUint32(frame[4:8], uint32(size)<<16|uint32(opcode))
	for _, p := range payload {
		frame = append(frame, p...)
	}
	_, err := conn.Write(frame)
	require.NoError(t, err)
}

func wireUint32(v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return buf[:]
}

func wireString(s string) []byte {
	length := len(s) + 1
	padded := (length + 3) &^ 3
	buf := make([]byte, 4+padded)
	binary.LittleEndian.PutUint32(buf, uint32(length))
	copy(buf[4:], s)
	return buf
}

func newTestManager(t *testing.T, session desktop.Session, exitOnLoss bool) (*Manager, *eventloop.Loop, *ime.Service) {
	t.Helper()
	loop, err := eventloop.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { loop.Close() })

	service := ime.NewService(ime.Options{
		Loop:    loop,
		Desktop: desktop.KDE,
		Session: session,
	})
	m := NewManager(Options{
		Loop:                  loop,
		Service:               service,
		ExitOnMainDisplayLoss: exitOnLoss,
	})
	t.Cleanup(m.Close)
	return m, loop, service
}

func runLoop(t *testing.T, loop *eventloop.Loop) <-chan error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	return done
}

// onLoop runs fn on the loop goroutine and waits for it to finish. Only
// assert, never require, inside fn.
func onLoop(t *testing.T, loop *eventloop.Loop, fn func()) {
	t.Helper()
	done := make(chan struct{})
	loop.Post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for posted function")
	}
}

func TestNewManagerOpensDefaultDisplay(t *testing.T) {
	rt := newFakeRuntime(t)
	listener := rt.listen(defaultSocket)

	m, _, service := newTestManager(t, desktop.SessionWayland, false)
	accept(t, listener)

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, []string{""}, m.Names())

	conn, ok := m.Connection("")
	require.True(t, ok)
	assert.Equal(t, "", conn.Name())
	assert.NotNil(t, conn.Display())
	require.NotNil(t, conn.FocusGroup())
	assert.Equal(t, focus.DisplayGroupName(""), conn.FocusGroup().Name())

	_, ok = service.FocusManager().Group("wayland:")
	assert.True(t, ok)
}

func TestNewManagerSurvivesMissingCompositor(t *testing.T) {
	newFakeRuntime(t) // runtime dir exists, nothing listens

	m, _, _ := newTestManager(t, desktop.SessionWayland, true)

	assert.Zero(t, m.Len())
	assert.Empty(t, m.Names())
}

func TestOpenDisplayAdditional(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.listen(defaultSocket)
	rt.listen("wayland-1")

	m, _, _ := newTestManager(t, desktop.SessionWayland, false)
	m.OpenDisplay("wayland-1")

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"", "wayland-1"}, m.Names())
}

func TestOpenDisplayExistingNameKept(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.listen(defaultSocket)

	m, _, _ := newTestManager(t, desktop.SessionWayland, false)
	first, ok := m.Connection("")
	require.True(t, ok)

	var created int
	m.AddConnectionCreatedCallback(func(string, *wayland.Display, *focus.Group) { created++ })
	require.Equal(t, 1, created, "replay for the existing connection")

	m.OpenDisplay("")

	assert.Equal(t, 1, created, "reopening a held name announces nothing")
	assert.Equal(t, 1, m.Len())
	again, _ := m.Connection("")
	assert.Same(t, first, again)
}

func TestOpenDisplayFailureIsSoft(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.listen(defaultSocket)

	m, _, _ := newTestManager(t, desktop.SessionWayland, false)

	var names []string
	m.AddConnectionCreatedCallback(func(name string, _ *wayland.Display, _ *focus.Group) {
		names = append(names, name)
	})

	m.OpenDisplay("wayland-nope")

	assert.Equal(t, 1, m.Len())
	assert.Equal(t, []string{""}, names, "failed open announces nothing")
}

func TestOpenDisplayUnwindsOnGroupCollision(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.listen(defaultSocket)
	rt.listen("wayland-dup")

	m, _, service := newTestManager(t, desktop.SessionWayland, false)
	_, err := service.FocusManager().CreateGroup(focus.DisplayGroupName("wayland-dup"))
	require.NoError(t, err)

	m.OpenDisplay("wayland-dup")

	assert.Equal(t, 1, m.Len())
	_, ok := m.Connection("wayland-dup")
	assert.False(t, ok, "group collision rolls the open back")
}

func TestCreatedCallbackReplaysExisting(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.listen(defaultSocket)
	rt.listen("wayland-1")

	m, _, _ := newTestManager(t, desktop.SessionWayland, false)
	m.OpenDisplay("wayland-1")
	require.Equal(t, 2, m.Len())

	var replayed []string
	m.AddConnectionCreatedCallback(func(name string, d *wayland.Display, g *focus.Group) {
		replayed = append(replayed, name)
		assert.NotNil(t, d)
		require.NotNil(t, g)
		assert.Equal(t, focus.DisplayGroupName(name), g.Name())
	})

	assert.Equal(t, []string{"", "wayland-1"}, replayed,
		"every open connection replayed before subscribe returns")
}

func TestCreatedCallbackReplayOnEmptyRegistry(t *testing.T) {
	newFakeRuntime(t)

	m, _, _ := newTestManager(t, desktop.SessionWayland, false)

	var replayed int
	m.AddConnectionCreatedCallback(func(string, *wayland.Display, *focus.Group) { replayed++ })
	assert.Zero(t, replayed)
}

func TestClosedCallbackHasNoReplay(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.listen(defaultSocket)

	m, _, _ := newTestManager(t, desktop.SessionWayland, false)

	var closed int
	m.AddConnectionClosedCallback(func(string, *wayland.Display) { closed++ })
	assert.Zero(t, closed)
}

func TestRemoveDisplayNotifiesBeforeErasing(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.listen(defaultSocket)

	m, _, service := newTestManager(t, desktop.SessionWayland, false)

	var closedNames []string
	m.AddConnectionClosedCallback(func(name string, d *wayland.Display) {
		closedNames = append(closedNames, name)
		assert.GreaterOrEqual(t, d.Fd(), 0, "handle still open during delivery")
		_, present := m.Connection(name)
		assert.True(t, present, "entry erased only after subscribers hear about it")
	})

	m.RemoveDisplay("")

	assert.Equal(t, []string{""}, closedNames)
	assert.Zero(t, m.Len())
	_, ok := service.FocusManager().Group(focus.DisplayGroupName(""))
	assert.False(t, ok, "focus group destroyed with the connection")
}

func TestRemoveDisplayAbsentName(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.listen(defaultSocket)

	m, _, _ := newTestManager(t, desktop.SessionWayland, false)

	var closed int
	m.AddConnectionClosedCallback(func(string, *wayland.Display) { closed++ })

	m.RemoveDisplay("ghost")

	assert.Zero(t, closed)
	assert.Equal(t, 1, m.Len())
}

func TestCallbackRevocation(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.listen(defaultSocket)
	rt.listen("wayland-1")

	m, _, _ := newTestManager(t, desktop.SessionWayland, false)

	var created, closed int
	createdEntry := m.AddConnectionCreatedCallback(func(string, *wayland.Display, *focus.Group) { created++ })
	closedEntry := m.AddConnectionClosedCallback(func(string, *wayland.Display) { closed++ })
	require.Equal(t, 1, created, "replay for the default display")

	createdEntry.Remove()
	closedEntry.Remove()

	m.OpenDisplay("wayland-1")
	m.RemoveDisplay("wayland-1")

	assert.Equal(t, 1, created, "revoked subscriber heard nothing new")
	assert.Zero(t, closed)
}

func TestExitPolicyOnMainDisplayLoss(t *testing.T) {
	cases := []struct {
		name        string
		session     desktop.Session
		exitOnLoss  bool
		openDefault bool
		remove      string
		wantExit    bool
	}{
		{"main display with policy", desktop.SessionWayland, true, true, "", true},
		{"policy disabled", desktop.SessionWayland, false, true, "", false},
		{"x11 session", desktop.SessionX11, true, true, "", false},
		{"named display", desktop.SessionWayland, true, true, "wayland-1", false},
		{"main display never opened", desktop.SessionWayland, true, false, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := newFakeRuntime(t)
			if tc.openDefault {
				rt.listen(defaultSocket)
			}
			rt.listen("wayland-1")

			m, loop, _ := newTestManager(t, tc.session, tc.exitOnLoss)
			m.OpenDisplay("wayland-1")

			done := runLoop(t, loop)
			onLoop(t, loop, func() { m.RemoveDisplay(tc.remove) })

			if tc.wantExit {
				select {
				case err := <-done:
					assert.NoError(t, err)
				case <-time.After(2 * time.Second):
					t.Fatal("loop kept running after losing the main display")
				}
				return
			}

			select {
			case <-done:
				t.Fatal("loop stopped although the policy does not apply")
			case <-time.After(150 * time.Millisecond):
			}
			loop.Quit()
			require.NoError(t, <-done)
		})
	}
}

func TestSetExitOnMainDisplayLoss(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.listen(defaultSocket)

	m, loop, _ := newTestManager(t, desktop.SessionWayland, false)
	done := runLoop(t, loop)

	onLoop(t, loop, func() {
		assert.False(t, m.ExitOnMainDisplayLoss())
		m.SetExitOnMainDisplayLoss(true)
		m.RemoveDisplay("")
	})

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("updated policy not honored")
	}
}

func TestHangupClosesConnection(t *testing.T) {
	rt := newFakeRuntime(t)
	listener := rt.listen(defaultSocket)

	m, loop, _ := newTestManager(t, desktop.SessionWayland, false)
	server := accept(t, listener)

	closedCh := make(chan string, 2)
	m.AddConnectionClosedCallback(func(name string, _ *wayland.Display) { closedCh <- name })

	done := runLoop(t, loop)

	require.NoError(t, server.Close())

	select {
	case name := <-closedCh:
		assert.Equal(t, "", name)
	case <-time.After(2 * time.Second):
		t.Fatal("hangup never produced a closed notification")
	}

	select {
	case <-closedCh:
		t.Fatal("closed delivered more than once")
	case <-time.After(150 * time.Millisecond):
	}

	onLoop(t, loop, func() { assert.Zero(t, m.Len()) })

	loop.Quit()
	require.NoError(t, <-done)
}

func TestHangupTriggersExitPolicy(t *testing.T) {
	rt := newFakeRuntime(t)
	listener := rt.listen(defaultSocket)

	m, loop, _ := newTestManager(t, desktop.SessionWayland, true)
	server := accept(t, listener)

	closedCh := make(chan string, 2)
	m.AddConnectionClosedCallback(func(name string, _ *wayland.Display) { closedCh <- name })

	done := runLoop(t, loop)
	require.NoError(t, server.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("losing the main display did not stop the loop")
	}
	assert.Equal(t, "", <-closedCh)
	assert.Zero(t, m.Len())
}

func TestProtocolErrorClosesConnection(t *testing.T) {
	rt := newFakeRuntime(t)
	listener := rt.listen(defaultSocket)

	m, loop, _ := newTestManager(t, desktop.SessionWayland, false)
	server := accept(t, listener)

	closedCh := make(chan string, 2)
	m.AddConnectionClosedCallback(func(name string, _ *wayland.Display) { closedCh <- name })

	done := runLoop(t, loop)

	// wl_display.error aimed at the display object itself.
	writeEvent(t, server, 1, 0, wireUint32(1), wireUint32(3), wireString("invalid method"))

	select {
	case name := <-closedCh:
		assert.Equal(t, "", name)
	case <-time.After(2 * time.Second):
		t.Fatal("protocol error never closed the connection")
	}

	onLoop(t, loop, func() { assert.Zero(t, m.Len()) })

	loop.Quit()
	require.NoError(t, <-done)
}

func TestPumpSurvivesOrdinaryTraffic(t *testing.T) {
	rt := newFakeRuntime(t)
	listener := rt.listen(defaultSocket)

	m, loop, _ := newTestManager(t, desktop.SessionWayland, false)
	server := accept(t, listener)

	closedCh := make(chan string, 1)
	m.AddConnectionClosedCallback(func(name string, _ *wayland.Display) { closedCh <- name })

	done := runLoop(t, loop)

	// Benign delete_id events pump through without closing anything.
	writeEvent(t, server, 1, 1, wireUint32(99))
	writeEvent(t, server, 1, 1, wireUint32(98))

	time.Sleep(150 * time.Millisecond)
	select {
	case <-closedCh:
		t.Fatal("benign traffic closed the connection")
	default:
	}
	onLoop(t, loop, func() { assert.Equal(t, 1, m.Len()) })

	loop.Quit()
	require.NoError(t, <-done)
}

func TestCloseTearsDownSilently(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.listen(defaultSocket)
	rt.listen("wayland-1")

	m, _, service := newTestManager(t, desktop.SessionWayland, true)
	m.OpenDisplay("wayland-1")

	var closed int
	m.AddConnectionClosedCallback(func(string, *wayland.Display) { closed++ })

	m.Close()

	assert.Zero(t, closed, "shutdown does not announce closures")
	assert.Zero(t, m.Len())
	_, ok := service.FocusManager().Group(focus.DisplayGroupName(""))
	assert.False(t, ok)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "default", Label(""))
	assert.Equal(t, "wayland-1", Label("wayland-1"))
}
