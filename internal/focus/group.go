// Package focus tracks input contexts and their grouping per display
// connection. Each connection owns one Group; within a group at most one
// context holds the focus at a time.
package focus

import (
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DisplayGroupName derives the focus group identifier for a display
// connection name.
func DisplayGroupName(display string) string {
	return "wayland:" + display
}

// Context represents a single client input context.
type Context struct {
	id      ulid.ULID
	program string
	group   *Group
}

// ID returns the context's ULID string.
func (c *Context) ID() string {
	return c.id.String()
}

// Program returns the name of the client program that owns the context.
func (c *Context) Program() string {
	return c.program
}

// CreatedAt recovers the creation time embedded in the ULID.
func (c *Context) CreatedAt() time.Time {
	return ulid.Time(c.id.Time())
}

// Focused reports whether this context currently holds its group's focus.
func (c *Context) Focused() bool {
	c.group.mu.RLock()
	defer c.group.mu.RUnlock()
	return c.group.focused == c
}

// Group tracks the input contexts attached to one display connection.
// A group is named after its connection, for example "wayland:wayland-1".
type Group struct {
	name string

	mu       sync.RWMutex
	contexts map[string]*Context
	focused  *Context
}

// NewGroup creates an empty group with the given display identifier.
func NewGroup(name string) *Group {
	return &Group{
		name:     name,
		contexts: make(map[string]*Context),
	}
}

// Name returns the group's display identifier.
func (g *Group) Name() string {
	return g.name
}

// AddContext registers a new context for the given program and returns it.
func (g *Group) AddContext(program string) (*Context, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ULID: %w", err)
	}
	c := &Context{id: id, program: program, group: g}

	g.mu.Lock()
	g.contexts[c.ID()] = c
	g.mu.Unlock()
	return c, nil
}

// RemoveContext drops a context from the group, clearing the focus if the
// removed context held it. It reports whether the id was present.
func (g *Group) RemoveContext(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.contexts[id]
	if !ok {
		return false
	}
	delete(g.contexts, id)
	if g.focused == c {
		g.focused = nil
	}
	return true
}

// Focus gives the focus to the context with the given id, taking it from
// the previous holder.
func (g *Group) Focus(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.contexts[id]
	if !ok {
		return fmt.Errorf("focus: no context %q in group %q", id, g.name)
	}
	g.focused = c
	return nil
}

// ClearFocus leaves the group with no focused context.
func (g *Group) ClearFocus() {
	g.mu.Lock()
	g.focused = nil
	g.mu.Unlock()
}

// Focused returns the context holding the focus, or nil.
func (g *Group) Focused() *Context {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.focused
}

// Contexts returns the group's contexts ordered by creation. ULIDs sort
// lexicographically by timestamp, so ordering by id is ordering by age.
func (g *Group) Contexts() []*Context {
	g.mu.RLock()
	out := make([]*Context, 0, len(g.contexts))
	for _, c := range g.contexts {
		out = append(out, c)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].id.Compare(out[j].id) < 0
	})
	return out
}

// Len returns the number of contexts in the group.
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.contexts)
}
