// Package handlertable provides an ordered collection of revocable callback
// subscriptions. Subscribers hold an Entry as the exclusive handle on their
// registration; releasing it removes the callback without disturbing other
// subscribers, including mid-notification.
package handlertable

import "iter"

// Entry is a live subscription in a Table. Whoever added the subscription
// owns the Entry and ends the registration by calling Remove.
type Entry[T any] struct {
	value   T
	table   *Table[T]
	prev    *Entry[T]
	next    *Entry[T]
	removed bool
}

// Value returns the subscribed callback value.
func (e *Entry[T]) Value() T {
	return e.value
}

// Remove revokes the subscription. It is idempotent. Removing an entry while
// a View iteration is in progress is safe: the removed entry is skipped and
// every other entry is still visited.
func (e *Entry[T]) Remove() {
	if e.removed {
		return
	}
	e.removed = true

	if e.prev != nil {
		e.prev.next = e.next
	} else {
		e.table.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		e.table.tail = e.prev
	}
	// e.next stays intact so an iteration currently parked on e can keep
	// walking the live chain.
	e.table.size--
}

// Table is an insertion-ordered list of subscriptions. It is not safe for
// concurrent use; callers confine it to the event-loop goroutine.
type Table[T any] struct {
	head *Entry[T]
	tail *Entry[T]
	size int
}

// New creates an empty table.
func New[T any]() *Table[T] {
	return &Table[T]{}
}

// Add appends value and returns the entry that owns the subscription.
func (t *Table[T]) Add(value T) *Entry[T] {
	e := &Entry[T]{value: value, table: t, prev: t.tail}
	if t.tail != nil {
		t.tail.next = e
	} else {
		t.head = e
	}
	t.tail = e
	t.size++
	return e
}

// View returns a restartable sequence over the current subscriptions in
// insertion order. Removed entries are never produced, even when removal
// happens between yields. Entries added during an iteration may or may not
// be seen by that iteration.
func (t *Table[T]) View() iter.Seq[T] {
	return func(yield func(T) bool) {
		for e := t.head; e != nil; e = e.next {
			if e.removed {
				continue
			}
			if !yield(e.value) {
				return
			}
		}
	}
}

// Len returns the number of live subscriptions.
func (t *Table[T]) Len() int {
	return t.size
}
