// Package layoutsync mirrors the active input-method layout into KDE's
// keyboard configuration. Plasma keeps its own layout list in kxkbrc and
// ignores what a Wayland client negotiates, so whenever the current group
// changes under a KDE Wayland session the bridge rewrites kxkbrc and asks
// the shell to reload it. The whole exercise is best effort: a desktop that
// is not KDE, a missing default display, an absent session bus or an
// unwritable config file all leave the input method itself untouched.
package layoutsync

import (
	"log/slog"
	"strings"

	"github.com/wayim/wayim/internal/config"
	"github.com/wayim/wayim/internal/desktop"
	"github.com/wayim/wayim/internal/display"
	"github.com/wayim/wayim/internal/handlertable"
	"github.com/wayim/wayim/internal/ime"
)

// xkbRules is the rule set handed to the keyboard-parameter interface.
const xkbRules = "evdev"

// ParseLayout splits a group layout string into layout and variant. The
// convention is "layout~variant"; without the separator the variant is
// empty.
func ParseLayout(s string) (layout, variant string) {
	layout, variant, _ = strings.Cut(s, "~")
	return layout, variant
}

// SignalBus is the slice of the session bus the bridge needs. *dbus.Bus
// satisfies it.
type SignalBus interface {
	Available() bool
	EmitSignal(path, name string, values ...any) error
}

// Options configures a Bridge.
type Options struct {
	Logger   *slog.Logger
	Service  *ime.Service
	Displays *display.Manager
	Bus      SignalBus

	// KxkbrcPath overrides where the shell's keyboard config lives. Empty
	// means the standard per-user location.
	KxkbrcPath string
}

// Bridge subscribes to group changes and keeps kxkbrc in step. It runs on
// the loop goroutine like everything it touches.
type Bridge struct {
	logger   *slog.Logger
	service  *ime.Service
	displays *display.Manager
	bus      SignalBus
	kxkbrc   string

	watch *handlertable.Entry[func(ime.Event)]
}

// New wires the bridge into the service's group-changed event.
func New(opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	path := opts.KxkbrcPath
	if path == "" {
		path = config.KxkbrcPath()
	}

	b := &Bridge{
		logger:   logger,
		service:  opts.Service,
		displays: opts.Displays,
		bus:      opts.Bus,
		kxkbrc:   path,
	}
	b.watch = opts.Service.WatchEvent(ime.EventGroupChanged, func(ime.Event) { b.sync() })
	return b
}

// Close revokes the event subscription.
func (b *Bridge) Close() {
	if b.watch != nil {
		b.watch.Remove()
		b.watch = nil
	}
}

// sync runs the mirror sequence. The guards gate everything; past them each
// step is best effort and failures are logged, never raised back into event
// dispatch.
func (b *Bridge) sync() {
	if b.service.Desktop() != desktop.KDE || b.service.Session() != desktop.SessionWayland {
		return
	}
	conn, ok := b.displays.Connection("")
	if !ok {
		return
	}
	if b.bus == nil || !b.bus.Available() {
		return
	}

	layout, variant := ParseLayout(b.service.CurrentLayout())
	b.logger.Debug("syncing layout to kxkbrc", "layout", layout, "variant", variant)

	tree, err := config.LoadIniFile(b.kxkbrc)
	if err != nil {
		b.logger.Warn("failed to read kxkbrc", "path", b.kxkbrc, "error", err)
		return
	}

	section := tree.Section("Layout")
	section.Key("LayoutList").SetValue(layout)
	section.Key("VariantList").SetValue(variant)
	section.Key("DisplayNames").SetValue("")
	section.Key("Use").SetValue("true")

	// Model and Options belong to the user; they are read and applied but
	// never rewritten.
	model := section.Key("Model").String()
	options := section.Key("Options").String()
	b.service.SetXkbParameters(conn.FocusGroup().Name(), xkbRules, model, options)

	if err := config.SaveIniAtomic(tree, b.kxkbrc); err != nil {
		b.logger.Warn("failed to save kxkbrc", "path", b.kxkbrc, "error", err)
		return
	}

	if err := b.bus.EmitSignal("/Layouts", "org.kde.keyboard.reloadConfig"); err != nil {
		b.logger.Warn("failed to signal layout reload", "error", err)
	}
}
