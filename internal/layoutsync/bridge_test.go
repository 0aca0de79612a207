package layoutsync

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayim/wayim/internal/config"
	"github.com/wayim/wayim/internal/desktop"
	"github.com/wayim/wayim/internal/display"
	"github.com/wayim/wayim/internal/eventloop"
	"github.com/wayim/wayim/internal/ime"
)

type fakeBus struct {
	available bool
	emitErr   error
	signals   []string
}

func (f *fakeBus) Available() bool { return f.available }

func (f *fakeBus) EmitSignal(path, name string, values ...any) error {
	f.signals = append(f.signals, path+" "+name)
	return f.emitErr
}

// newTestWorld builds the service and registry the bridge guards inspect.
// withDefault controls whether a compositor socket exists for the default
// display. The loop never runs; everything stays on the test goroutine.
func newTestWorld(t *testing.T, desk desktop.Type, session desktop.Session, withDefault bool) (*ime.Service, *display.Manager) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("WAYLAND_DISPLAY", "wayland-test")
	if withDefault {
		listener, err := net.Listen("unix", filepath.Join(dir, "wayland-test"))
		require.NoError(t, err)
		t.Cleanup(func() { listener.Close() })
	}

	loop, err := eventloop.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { loop.Close() })

	service := ime.NewService(ime.Options{
		Loop:    loop,
		Desktop: desk,
		Session: session,
		Groups: []ime.Group{
			{Name: "english", Layout: "us"},
			{Name: "german", Layout: "de~neo"},
		},
	})
	m := display.NewManager(display.Options{Loop: loop, Service: service})
	t.Cleanup(m.Close)
	return service, m
}

func TestParseLayout(t *testing.T) {
	cases := []struct {
		in      string
		layout  string
		variant string
	}{
		{"us", "us", ""},
		{"us~dvorak", "us", "dvorak"},
		{"", "", ""},
		{"de~neo", "de", "neo"},
		{"a~b~c", "a", "b~c"},
	}
	for _, tc := range cases {
		layout, variant := ParseLayout(tc.in)
		assert.Equal(t, tc.layout, layout, tc.in)
		assert.Equal(t, tc.variant, variant, tc.in)
	}
}

func TestSyncRewritesKxkbrc(t *testing.T) {
	service, displays := newTestWorld(t, desktop.KDE, desktop.SessionWayland, true)
	kxkbrc := filepath.Join(t.TempDir(), "kxkbrc")
	seed := "[Layout]\nModel=pc105\nOptions=terminate:ctrl_alt_bksp\n\n[Other]\nKeep=1\n"
	require.NoError(t, os.WriteFile(kxkbrc, []byte(seed), 0o644))

	bus := &fakeBus{available: true}
	bridge := New(Options{Service: service, Displays: displays, Bus: bus, KxkbrcPath: kxkbrc})
	defer bridge.Close()

	require.NoError(t, service.SetCurrentGroup("german"))

	tree, err := config.LoadIniFile(kxkbrc)
	require.NoError(t, err)
	section := tree.Section("Layout")
	assert.Equal(t, "de", section.Key("LayoutList").String())
	assert.Equal(t, "neo", section.Key("VariantList").String())
	assert.Equal(t, "", section.Key("DisplayNames").String())
	assert.Equal(t, "true", section.Key("Use").String())
	assert.Equal(t, "pc105", section.Key("Model").String(), "model key left alone")
	assert.Equal(t, "1", tree.Section("Other").Key("Keep").String(), "foreign sections survive")

	raw, err := os.ReadFile(kxkbrc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "LayoutList=de", "shell config style has no spaces around =")

	params, ok := service.XkbParameters("wayland:")
	require.True(t, ok)
	assert.Equal(t, ime.XkbParameters{Rules: "evdev", Model: "pc105", Options: "terminate:ctrl_alt_bksp"}, params)

	assert.Equal(t, []string{"/Layouts org.kde.keyboard.reloadConfig"}, bus.signals)
}

func TestSyncCreatesKxkbrcWhenMissing(t *testing.T) {
	service, displays := newTestWorld(t, desktop.KDE, desktop.SessionWayland, true)
	kxkbrc := filepath.Join(t.TempDir(), "kxkbrc")

	bus := &fakeBus{available: true}
	bridge := New(Options{Service: service, Displays: displays, Bus: bus, KxkbrcPath: kxkbrc})
	defer bridge.Close()

	require.NoError(t, service.SetCurrentGroup("german"))

	tree, err := config.LoadIniFile(kxkbrc)
	require.NoError(t, err)
	assert.Equal(t, "de", tree.Section("Layout").Key("LayoutList").String())

	params, ok := service.XkbParameters("wayland:")
	require.True(t, ok)
	assert.Equal(t, "evdev", params.Rules)
	assert.Empty(t, params.Model)
	assert.Empty(t, params.Options)
}

func TestSyncBareLayoutHasEmptyVariant(t *testing.T) {
	service, displays := newTestWorld(t, desktop.KDE, desktop.SessionWayland, true)
	kxkbrc := filepath.Join(t.TempDir(), "kxkbrc")

	bus := &fakeBus{available: true}
	bridge := New(Options{Service: service, Displays: displays, Bus: bus, KxkbrcPath: kxkbrc})
	defer bridge.Close()

	require.NoError(t, service.SetCurrentGroup("german"))
	require.NoError(t, service.SetCurrentGroup("english"))

	tree, err := config.LoadIniFile(kxkbrc)
	require.NoError(t, err)
	section := tree.Section("Layout")
	assert.Equal(t, "us", section.Key("LayoutList").String())
	assert.Equal(t, "", section.Key("VariantList").String())
	assert.Len(t, bus.signals, 2)
}

func TestSyncGuards(t *testing.T) {
	cases := []struct {
		name        string
		desktop     desktop.Type
		session     desktop.Session
		withDefault bool
		busOK       bool
	}{
		{"wrong desktop", desktop.GNOME, desktop.SessionWayland, true, true},
		{"x11 session", desktop.KDE, desktop.SessionX11, true, true},
		{"no default connection", desktop.KDE, desktop.SessionWayland, false, true},
		{"bus unavailable", desktop.KDE, desktop.SessionWayland, true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service, displays := newTestWorld(t, tc.desktop, tc.session, tc.withDefault)
			kxkbrc := filepath.Join(t.TempDir(), "kxkbrc")
			bus := &fakeBus{available: tc.busOK}
			bridge := New(Options{Service: service, Displays: displays, Bus: bus, KxkbrcPath: kxkbrc})
			defer bridge.Close()

			require.NoError(t, service.SetCurrentGroup("german"))

			_, err := os.Stat(kxkbrc)
			assert.True(t, os.IsNotExist(err), "guard failure must not touch kxkbrc")
			assert.Empty(t, bus.signals)
			_, ok := service.XkbParameters("wayland:")
			assert.False(t, ok)
		})
	}
}

func TestSyncNilBus(t *testing.T) {
	service, displays := newTestWorld(t, desktop.KDE, desktop.SessionWayland, true)
	kxkbrc := filepath.Join(t.TempDir(), "kxkbrc")
	bridge := New(Options{Service: service, Displays: displays, KxkbrcPath: kxkbrc})
	defer bridge.Close()

	require.NoError(t, service.SetCurrentGroup("german"))

	_, err := os.Stat(kxkbrc)
	assert.True(t, os.IsNotExist(err))
}

func TestSyncUnreadableKxkbrc(t *testing.T) {
	service, displays := newTestWorld(t, desktop.KDE, desktop.SessionWayland, true)
	kxkbrc := t.TempDir() // a directory cannot be parsed

	bus := &fakeBus{available: true}
	bridge := New(Options{Service: service, Displays: displays, Bus: bus, KxkbrcPath: kxkbrc})
	defer bridge.Close()

	require.NoError(t, service.SetCurrentGroup("german"), "failures stay inside the bridge")
	assert.Empty(t, bus.signals, "nothing announced when the config cannot be read")
}

func TestSyncSignalFailureKeepsConfig(t *testing.T) {
	service, displays := newTestWorld(t, desktop.KDE, desktop.SessionWayland, true)
	kxkbrc := filepath.Join(t.TempDir(), "kxkbrc")

	bus := &fakeBus{available: true, emitErr: errors.New("bus gone")}
	bridge := New(Options{Service: service, Displays: displays, Bus: bus, KxkbrcPath: kxkbrc})
	defer bridge.Close()

	require.NoError(t, service.SetCurrentGroup("german"))

	_, err := os.Stat(kxkbrc)
	assert.NoError(t, err, "config written even when the signal fails")
	assert.Len(t, bus.signals, 1)
}

func TestCloseStopsSyncing(t *testing.T) {
	service, displays := newTestWorld(t, desktop.KDE, desktop.SessionWayland, true)
	kxkbrc := filepath.Join(t.TempDir(), "kxkbrc")
	bus := &fakeBus{available: true}
	bridge := New(Options{Service: service, Displays: displays, Bus: bus, KxkbrcPath: kxkbrc})

	bridge.Close()
	bridge.Close() // idempotent

	require.NoError(t, service.SetCurrentGroup("german"))

	assert.Empty(t, bus.signals)
	_, err := os.Stat(kxkbrc)
	assert.True(t, os.IsNotExist(err))
}
