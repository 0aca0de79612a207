// Package tui provides the BubbleTea-based monitor for a running daemon.
package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wayim/wayim/internal/dbus"
)

// Client is the slice of the daemon interface the monitor reads and drives.
// *dbus.Client satisfies it.
type Client interface {
	Status() (dbus.StatusInfo, error)
	ListDisplays() ([]dbus.DisplayInfo, error)
	ListGroups() ([]dbus.GroupInfo, error)
	SetCurrentGroup(name string) error
}

// pane identifies which table has focus.
type pane int

const (
	paneDisplays pane = iota
	paneGroups
)

// Model is the monitor TUI model.
type Model struct {
	client   Client
	interval time.Duration

	// Last snapshot
	status  dbus.StatusInfo
	fetched bool
	lastErr error

	// Components
	displays table.Model
	groups   table.Model
	help     help.Model

	// State
	pane   pane
	width  int
	height int
	ready  bool

	// Key bindings
	keys KeyMap

	// Status message
	statusMsg string
	statusErr bool
}

// New creates a monitor model polling client every interval.
func New(client Client, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(lipgloss.Color("8"))
	styles.Selected = styles.Selected.Bold(true).Foreground(lipgloss.Color("12"))

	displays := table.New(
		table.WithColumns(displayColumns()),
		table.WithFocused(true),
		table.WithHeight(6),
	)
	displays.SetStyles(styles)

	groups := table.New(
		table.WithColumns(groupColumns()),
		table.WithHeight(6),
	)
	groups.SetStyles(styles)

	return Model{
		client:   client,
		interval: interval,
		displays: displays,
		groups:   groups,
		help:     help.New(),
		pane:     paneDisplays,
		keys:     DefaultKeyMap(),
	}
}

func displayColumns() []table.Column {
	return []table.Column{
		{Title: "Display", Width: 14},
		{Title: "FD", Width: 4},
		{Title: "Focus Group", Width: 18},
		{Title: "Contexts", Width: 8},
		{Title: "Globals", Width: 7},
	}
}

func groupColumns() []table.Column {
	return []table.Column{
		{Title: "", Width: 2},
		{Title: "Group", Width: 14},
		{Title: "Layout", Width: 10},
		{Title: "Input Methods", Width: 26},
	}
}

// displayRows converts a display listing into table rows.
func displayRows(infos []dbus.DisplayInfo) []table.Row {
	rows := make([]table.Row, 0, len(infos))
	for _, d := range infos {
		rows = append(rows, table.Row{
			d.Label,
			strconv.Itoa(int(d.Fd)),
			d.FocusGroup,
			strconv.Itoa(int(d.Contexts)),
			strconv.Itoa(int(d.Globals)),
		})
	}
	return rows
}

// groupRows converts a group listing into table rows. The active group is
// marked in the first column; the name stays in the second, where Apply
// reads it back.
func groupRows(infos []dbus.GroupInfo) []table.Row {
	rows := make([]table.Row, 0, len(infos))
	for _, g := range infos {
		marker := ""
		if g.Current {
			marker = "*"
		}
		rows = append(rows, table.Row{
			marker,
			g.Name,
			g.Layout,
			strings.Join(g.InputMethods, ", "),
		})
	}
	return rows
}

// Init starts the first fetch and the poll ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch, m.tick())
}

type tickMsg time.Time

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type snapshotMsg struct {
	status   dbus.StatusInfo
	displays []dbus.DisplayInfo
	groups   []dbus.GroupInfo
	err      error
}

// fetch pulls a full snapshot from the daemon.
func (m Model) fetch() tea.Msg {
	status, err := m.client.Status()
	if err != nil {
		return snapshotMsg{err: err}
	}
	displays, err := m.client.ListDisplays()
	if err != nil {
		return snapshotMsg{err: err}
	}
	groups, err := m.client.ListGroups()
	if err != nil {
		return snapshotMsg{err: err}
	}
	return snapshotMsg{status: status, displays: displays, groups: groups}
}

type statusMsg struct {
	text  string
	isErr bool
}

type clearStatusMsg struct{}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		paneHeight := (msg.Height - 10) / 2
		if paneHeight < 3 {
			paneHeight = 3
		}
		m.displays.SetHeight(paneHeight)
		m.groups.SetHeight(paneHeight)
		m.displays.SetWidth(msg.Width)
		m.groups.SetWidth(msg.Width)
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetch, m.tick())

	case snapshotMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.fetched = true
			m.status = msg.status
			m.displays.SetRows(displayRows(msg.displays))
			m.groups.SetRows(groupRows(msg.groups))
		}
		return m, nil

	case statusMsg:
		m.statusMsg = msg.text
		m.statusErr = msg.isErr
		// A status note usually follows an action; refresh right away.
		return m, tea.Batch(m.fetch, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return clearStatusMsg{}
		}))

	case clearStatusMsg:
		m.statusMsg = ""
		m.statusErr = false
		return m, nil
	}

	return m.updateFocused(msg)
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetch

	case key.Matches(msg, m.keys.Tab):
		if m.pane == paneDisplays {
			m.pane = paneGroups
			m.displays.Blur()
			m.groups.Focus()
		} else {
			m.pane = paneDisplays
			m.groups.Blur()
			m.displays.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.Apply):
		if m.pane == paneGroups {
			if row := m.groups.SelectedRow(); len(row) > 1 {
				return m, m.applyGroup(row[1])
			}
		}
		return m, nil
	}

	return m.updateFocused(msg)
}

// updateFocused forwards a message to whichever table has focus.
func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.pane {
	case paneDisplays:
		m.displays, cmd = m.displays.Update(msg)
	case paneGroups:
		m.groups, cmd = m.groups.Update(msg)
	}
	return m, cmd
}

// applyGroup asks the daemon to switch the active group.
func (m Model) applyGroup(name string) tea.Cmd {
	return func() tea.Msg {
		if err := m.client.SetCurrentGroup(name); err != nil {
			return statusMsg{text: "Switch failed: " + err.Error(), isErr: true}
		}
		return statusMsg{text: "Switched to " + name, isErr: false}
	}
}

// View renders the monitor.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n")
	b.WriteString(m.viewPane("Displays", m.displays, m.pane == paneDisplays))
	b.WriteString("\n")
	b.WriteString(m.viewPane("Groups", m.groups, m.pane == paneGroups))
	b.WriteString("\n")

	if m.statusMsg != "" {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
		if m.statusErr {
			style = style.Foreground(lipgloss.Color("9"))
		}
		b.WriteString(style.Render(m.statusMsg))
	} else {
		b.WriteString(m.help.View(m.keys))
	}

	return b.String()
}

func (m Model) viewHeader() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	title := titleStyle.Render("wayim monitor")

	if m.lastErr != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
		return title + "\n" + errStyle.Render("daemon unreachable: "+m.lastErr.Error()) + "\n"
	}
	if !m.fetched {
		return title + "\n" + labelStyle.Render("waiting for daemon...") + "\n"
	}

	uptime := time.Since(time.Unix(m.status.StartedAt, 0)).Truncate(time.Second)
	info := fmt.Sprintf("version %s  pid %d  up %s  %s/%s",
		m.status.Version, m.status.PID, uptime, m.status.Desktop, m.status.Session)
	state := fmt.Sprintf("current group: %s  displays: %d",
		m.status.CurrentGroup, m.status.DisplayCount)
	if m.status.ExitOnMainDisplayLoss {
		state += "  exit-on-main-loss"
	}
	return title + "\n" + labelStyle.Render(info) + "\n" + labelStyle.Render(state) + "\n"
}

func (m Model) viewPane(title string, t table.Model, focused bool) string {
	style := lipgloss.NewStyle().Bold(true)
	if focused {
		style = style.Foreground(lipgloss.Color("12"))
	} else {
		style = style.Foreground(lipgloss.Color("8"))
	}
	return style.Render(title) + "\n" + t.View() + "\n"
}

// RunOptions configures the monitor.
type RunOptions struct {
	Client   Client
	Interval time.Duration
}

// Run starts the monitor with the given options and blocks until quit.
func Run(opts RunOptions) error {
	client := opts.Client
	if client == nil {
		c, err := dbus.NewClient()
		if err != nil {
			return fmt.Errorf("failed to create daemon client: %w", err)
		}
		defer c.Close()
		client = c
	}

	m := New(client, opts.Interval)
	p := tea.NewProgram(m, tea.WithAltScreen())

	_, err := p.Run()
	return err
}
