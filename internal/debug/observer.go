package debug

import (
	"sync"
	"sync/atomic"
)

// Observer receives session notifications. Callbacks run on the session's
// sequence point: they may read the session and add or remove observers,
// but must not block or issue commands.
type Observer interface {
	// OnStateChanged is called after every transition.
	OnStateChanged(t Transition)

	// OnEvent is called for every event the session accepted, after any
	// transition the event caused.
	OnEvent(e Event)
}

// ObserverFuncs adapts callbacks to Observer. Nil callbacks are skipped.
type ObserverFuncs struct {
	StateChanged func(Transition)
	Event        func(Event)
}

// OnStateChanged calls f.StateChanged.
func (f ObserverFuncs) OnStateChanged(t Transition) {
	if f.StateChanged != nil {
		f.StateChanged(t)
	}
}

// OnEvent calls f.Event.
func (f ObserverFuncs) OnEvent(e Event) {
	if f.Event != nil {
		f.Event(e)
	}
}

type observerEntry struct {
	id       int
	observer Observer
	removed  atomic.Bool
}

// observerList keeps observers in registration order. Notification works on
// a snapshot, so callbacks may change membership; an observer removed during
// a notification is not called for the rest of it.
type observerList struct {
	mu      sync.Mutex
	nextID  int
	entries []*observerEntry
}

func (l *observerList) add(o Observer) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	l.entries = append(l.entries, &observerEntry{id: l.nextID, observer: o})
	return l.nextID
}

func (l *observerList) remove(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.id == id {
			e.removed.Store(true)
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (l *observerList) snapshot() []*observerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*observerEntry(nil), l.entries...)
}

func (l *observerList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *observerList) stateChanged(t Transition) {
	for _, e := range l.snapshot() {
		if !e.removed.Load() {
			e.observer.OnStateChanged(t)
		}
	}
}

func (l *observerList) event(ev Event) {
	for _, e := range l.snapshot() {
		if !e.removed.Load() {
			e.observer.OnEvent(ev)
		}
	}
}
