package pipeline

import (
	"slices"
	"sync"

	"github.com/Swind/go-media-task/core"
)

// Listener observes events of every Task in a Pipeline. Listeners run on the
// emitting Task's execution goroutine, in registration order, and share the
// constraints of core.EventFunc: they must not block or call control
// operations of the emitting Task synchronously.
type Listener func(ev core.Event)

// ListenerID identifies a registered Listener.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// listeners is an ordered, copy-on-write listener list.
type listeners struct {
	mu      sync.Mutex
	entries []listenerEntry
	nextID  ListenerID
}

func (l *listeners) add(fn Listener) ListenerID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	entries := slices.Clone(l.entries)
	l.entries = append(entries, listenerEntry{id: l.nextID, fn: fn})
	return l.nextID
}

func (l *listeners) remove(id ListenerID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := slices.IndexFunc(l.entries, func(e listenerEntry) bool { return e.id == id })
	if i < 0 {
		return false
	}
	l.entries = slices.Delete(slices.Clone(l.entries), i, i+1)
	return true
}

func (l *listeners) notify(ev core.Event) {
	l.mu.Lock()
	entries := l.entries
	l.mu.Unlock()
	for _, e := range entries {
		e.fn(ev)
	}
}

// AddListener appends fn to the listener list.
func (p *Pipeline) AddListener(fn Listener) ListenerID {
	return p.listeners.add(fn)
}

// RemoveListener drops a listener. It reports whether id was registered.
func (p *Pipeline) RemoveListener(id ListenerID) bool {
	return p.listeners.remove(id)
}
