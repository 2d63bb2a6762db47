package debug

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/stormdbg/internal/debug/location"
)

// Breakpoint is a snapshot of one registry entry.
type Breakpoint struct {
	// Location is the editor position. For synthetic entries the backend
	// could not map, it holds the raw backend target.
	Location location.Editor `json:"location"`

	// Target is the backend position submitted to, or reported by, the backend.
	Target location.Backend `json:"target"`

	// Resolved reports whether Location names a project file.
	Resolved bool `json:"resolved"`

	// Enabled indicates the user wants the breakpoint installed.
	Enabled bool `json:"enabled"`

	// Confirmed indicates the backend reported the breakpoint installed.
	Confirmed bool `json:"confirmed"`

	// Synthetic marks entries discovered from the backend rather than
	// requested by the user.
	Synthetic bool `json:"synthetic,omitempty"`

	// BackendID is the backend identifier, set once confirmed.
	BackendID string `json:"backendId,omitempty"`

	// HitCount is the number of times this breakpoint suspended the debuggee.
	HitCount int `json:"hitCount"`

	// SyncErr holds the last *SyncError until the next successful sync.
	SyncErr error `json:"-"`

	// submitted is set while an add request is in flight or installed.
	submitted bool
}

// SavedBreakpoint is the persisted form of a user breakpoint.
type SavedBreakpoint struct {
	Location location.Editor `json:"location" yaml:"location"`
	Enabled  bool            `json:"enabled" yaml:"enabled"`
}

// BreakpointStore persists user breakpoints per backend kind.
type BreakpointStore interface {
	Load(kind string) ([]SavedBreakpoint, error)
	Save(kind string, breakpoints []SavedBreakpoint) error
}

// Registry reconciles user breakpoints with the backend's confirmed set.
//
// Mutating methods are called by the owning Session on its sequence point. A
// nil transport means the session is not attached and changes stay local.
// Read methods are safe from any goroutine.
type Registry struct {
	mu       sync.RWMutex
	resolver location.Resolver
	log      zerolog.Logger

	entries map[location.Editor]*Breakpoint

	// withdrawn holds targets removed locally while their add was in flight.
	withdrawn map[location.Backend]struct{}
}

func newRegistry(resolver location.Resolver, log zerolog.Logger) *Registry {
	return &Registry{
		resolver:  resolver,
		log:       log,
		entries:   make(map[location.Editor]*Breakpoint),
		withdrawn: make(map[location.Backend]struct{}),
	}
}

// List returns all breakpoints ordered by path, then line.
func (r *Registry) List() []Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Breakpoint, 0, len(r.entries))
	for _, bp := range r.entries {
		result = append(result, *bp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Location.Less(result[j].Location)
	})
	return result
}

// Get returns the breakpoint at an editor location.
func (r *Registry) Get(loc location.Editor) (Breakpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bp, ok := r.entries[loc]
	if !ok {
		return Breakpoint{}, false
	}
	return *bp, true
}

// add registers an enabled breakpoint, coalescing with an existing entry at
// the same location.
func (r *Registry) add(ctx context.Context, t CommandTransport, loc location.Editor) (Breakpoint, error) {
	r.mu.Lock()
	bp, ok := r.entries[loc]
	if ok && bp.Enabled {
		snapshot := *bp
		r.mu.Unlock()
		return snapshot, nil
	}
	if !ok {
		target, resolved := r.resolver.ToBackend(loc)
		bp = &Breakpoint{
			Location: loc,
			Target:   target,
			Resolved: resolved,
		}
		r.entries[loc] = bp
	}
	bp.Enabled = true
	r.mu.Unlock()

	err := r.submit(ctx, t, bp)
	return r.snapshot(bp), err
}

// remove deletes a breakpoint. Unconfirmed entries are removed locally; a
// confirmed entry is removed from the backend first.
func (r *Registry) remove(ctx context.Context, t CommandTransport, loc location.Editor) error {
	r.mu.Lock()
	bp, ok := r.entries[loc]
	if !ok {
		r.mu.Unlock()
		return ErrBreakpointNotFound
	}
	if !bp.Confirmed || t == nil {
		if bp.submitted && t != nil {
			r.withdrawn[bp.Target] = struct{}{}
		}
		delete(r.entries, loc)
		r.mu.Unlock()
		return nil
	}
	target := bp.Target
	r.mu.Unlock()

	if err := t.RemoveBreakpoint(ctx, target); err != nil {
		syncErr := &SyncError{Op: "remove", Location: loc, Err: err}
		r.mu.Lock()
		bp.SyncErr = syncErr
		r.mu.Unlock()
		return syncErr
	}

	r.mu.Lock()
	delete(r.entries, loc)
	r.mu.Unlock()
	return nil
}

// setEnabled toggles a breakpoint. Disabling removes it from the backend but
// keeps the entry.
func (r *Registry) setEnabled(ctx context.Context, t CommandTransport, loc location.Editor, enabled bool) (Breakpoint, error) {
	r.mu.Lock()
	bp, ok := r.entries[loc]
	if !ok {
		r.mu.Unlock()
		return Breakpoint{}, ErrBreakpointNotFound
	}
	if bp.Enabled == enabled {
		snapshot := *bp
		r.mu.Unlock()
		return snapshot, nil
	}

	if enabled {
		bp.Enabled = true
		r.mu.Unlock()
		err := r.submit(ctx, t, bp)
		return r.snapshot(bp), err
	}

	if !bp.Confirmed || t == nil {
		if bp.submitted && t != nil {
			r.withdrawn[bp.Target] = struct{}{}
		}
		bp.Enabled = false
		bp.submitted = false
		snapshot := *bp
		r.mu.Unlock()
		return snapshot, nil
	}
	target := bp.Target
	r.mu.Unlock()

	if err := t.RemoveBreakpoint(ctx, target); err != nil {
		syncErr := &SyncError{Op: "disable", Location: loc, Err: err}
		r.mu.Lock()
		bp.SyncErr = syncErr
		snapshot := *bp
		r.mu.Unlock()
		return snapshot, syncErr
	}

	r.mu.Lock()
	bp.Enabled = false
	bp.Confirmed = false
	bp.submitted = false
	bp.BackendID = ""
	bp.SyncErr = nil
	snapshot := *bp
	r.mu.Unlock()
	return snapshot, nil
}

// submit sends an enabled breakpoint to the backend when attached.
func (r *Registry) submit(ctx context.Context, t CommandTransport, bp *Breakpoint) error {
	if t == nil {
		return nil
	}

	r.mu.Lock()
	if _, ok := r.withdrawn[bp.Target]; ok {
		// The earlier add is still in flight; its confirmation will match.
		delete(r.withdrawn, bp.Target)
		bp.submitted = true
		r.mu.Unlock()
		return nil
	}
	target := bp.Target
	loc := bp.Location
	r.mu.Unlock()

	if err := t.AddBreakpoint(ctx, target); err != nil {
		syncErr := &SyncError{Op: "add", Location: loc, Err: err}
		r.mu.Lock()
		bp.SyncErr = syncErr
		bp.submitted = false
		r.mu.Unlock()
		return syncErr
	}

	r.mu.Lock()
	bp.submitted = true
	bp.SyncErr = nil
	r.mu.Unlock()
	return nil
}

// confirmed marks the matching breakpoint installed. A confirmation with no
// local match becomes a synthetic entry.
func (r *Registry) confirmed(ctx context.Context, t CommandTransport, backendID string, loc Location) (Breakpoint, bool) {
	r.mu.Lock()
	if _, ok := r.withdrawn[loc.Backend]; ok {
		delete(r.withdrawn, loc.Backend)
		r.mu.Unlock()
		r.withdraw(ctx, t, loc.Backend)
		return Breakpoint{}, false
	}

	bp := r.find(loc)
	if bp == nil {
		bp = &Breakpoint{
			Location:  loc.Editor,
			Target:    loc.Backend,
			Resolved:  loc.Resolved,
			Enabled:   true,
			Synthetic: true,
			submitted: true,
		}
		r.entries[loc.Editor] = bp
		r.log.Debug().
			Str("target", loc.Backend.String()).
			Str("backend_id", backendID).
			Msg("registering breakpoint reported by backend")
	}

	if !bp.Enabled {
		r.mu.Unlock()
		r.withdraw(ctx, t, loc.Backend)
		return Breakpoint{}, false
	}

	bp.Confirmed = true
	bp.BackendID = backendID
	bp.SyncErr = nil
	bp.submitted = true
	snapshot := *bp
	r.mu.Unlock()
	return snapshot, true
}

// rejected attaches a sync error to the matching breakpoint.
func (r *Registry) rejected(loc Location, reason string) (Breakpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.withdrawn, loc.Backend)
	bp := r.find(loc)
	if bp == nil {
		r.log.Debug().Str("target", loc.Backend.String()).Msg("rejection for unknown breakpoint")
		return Breakpoint{}, false
	}
	bp.Confirmed = false
	bp.BackendID = ""
	bp.submitted = false
	bp.SyncErr = &SyncError{Op: "add", Location: bp.Location, Reason: reason}
	return *bp, true
}

// hit increments the hit count of the breakpoint at loc.
func (r *Registry) hit(loc Location) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if bp := r.find(loc); bp != nil {
		bp.HitCount++
	}
}

// resync re-submits every enabled breakpoint after an attach.
func (r *Registry) resync(ctx context.Context, t CommandTransport) {
	r.mu.Lock()
	pending := make([]*Breakpoint, 0, len(r.entries))
	for _, bp := range r.entries {
		bp.Confirmed = false
		bp.BackendID = ""
		bp.submitted = false
		if bp.Enabled {
			pending = append(pending, bp)
		}
	}
	clear(r.withdrawn)
	r.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Location.Less(pending[j].Location)
	})
	for _, bp := range pending {
		if err := r.submit(ctx, t, bp); err != nil {
			r.log.Warn().Err(err).Str("location", bp.Location.String()).Msg("breakpoint not submitted")
		}
	}
}

// detach forgets backend state after teardown. Synthetic entries belong to
// the backend and are dropped.
func (r *Registry) detach() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for loc, bp := range r.entries {
		if bp.Synthetic {
			delete(r.entries, loc)
			continue
		}
		bp.Confirmed = false
		bp.BackendID = ""
		bp.submitted = false
	}
	clear(r.withdrawn)
}

// saved returns the persisted form of the user breakpoints.
func (r *Registry) saved() []SavedBreakpoint {
	list := r.List()
	result := make([]SavedBreakpoint, 0, len(list))
	for _, bp := range list {
		if bp.Synthetic {
			continue
		}
		result = append(result, SavedBreakpoint{Location: bp.Location, Enabled: bp.Enabled})
	}
	return result
}

// restore loads persisted breakpoints, skipping invalid or duplicate entries.
func (r *Registry) restore(saved []SavedBreakpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range saved {
		if !s.Location.Valid() {
			continue
		}
		if _, ok := r.entries[s.Location]; ok {
			continue
		}
		target, resolved := r.resolver.ToBackend(s.Location)
		r.entries[s.Location] = &Breakpoint{
			Location: s.Location,
			Target:   target,
			Resolved: resolved,
			Enabled:  s.Enabled,
		}
	}
}

// find locates the entry for a backend-reported location. The submitted
// target is matched first, then the resolved editor location. Caller holds mu.
func (r *Registry) find(loc Location) *Breakpoint {
	for _, bp := range r.entries {
		if bp.Target == loc.Backend {
			return bp
		}
	}
	return r.entries[loc.Editor]
}

func (r *Registry) withdraw(ctx context.Context, t CommandTransport, target location.Backend) {
	if t == nil {
		return
	}
	if err := t.RemoveBreakpoint(ctx, target); err != nil {
		r.log.Warn().Err(err).Str("target", target.String()).Msg("failed to withdraw breakpoint")
	}
}

func (r *Registry) snapshot(bp *Breakpoint) Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *bp
}
