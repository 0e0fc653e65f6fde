package dbfactory

import (
	"fmt"
	"reflect"
)

// QueryTracking controls whether query results are attached to the tracker.
type QueryTracking int

const (
	// TrackAll snapshots every loaded entity so later edits are detected.
	TrackAll QueryTracking = iota
	// NoTracking returns detached entities.
	NoTracking
)

// EntryState is the lifecycle state of a tracked entity.
type EntryState int

const (
	Detached EntryState = iota
	Unchanged
	Added
	Modified
	Deleted
)

// String returns the string representation of the EntryState.
func (s EntryState) String() string {
	switch s {
	case Detached:
		return "detached"
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

type entry struct {
	meta     *entityMeta
	entity   reflect.Value // pointer to struct
	snapshot reflect.Value // struct copy taken when the entry was last synced
	state    EntryState
}

func (e *entry) identity() (string, bool) {
	if e.meta.key == nil {
		return "", false
	}
	v := e.entity.Elem().FieldByIndex(e.meta.key.index)
	if v.IsZero() {
		return "", false
	}
	return e.meta.table + "\x00" + fmt.Sprint(v.Interface()), true
}

func (e *entry) takeSnapshot() {
	cp := reflect.New(e.entity.Elem().Type()).Elem()
	cp.Set(e.entity.Elem())
	e.snapshot = cp
}

func (e *entry) changed() bool {
	return !reflect.DeepEqual(e.entity.Elem().Interface(), e.snapshot.Interface())
}

// Tracker records the entities a context has loaded or staged and what
// SaveChanges has to do with them.
type Tracker struct {
	AutoDetectChanges bool
	LazyLoading       bool
	QueryTracking     QueryTracking

	entries []*entry
	byPtr   map[uintptr]*entry
	byKey   map[string]*entry
}

func newTracker(autoDetect, lazy bool, tracking QueryTracking) *Tracker {
	return &Tracker{
		AutoDetectChanges: autoDetect,
		LazyLoading:       lazy,
		QueryTracking:     tracking,
		byPtr:             make(map[uintptr]*entry),
		byKey:             make(map[string]*entry),
	}
}

// State returns the state of entity, Detached when it is not tracked.
func (t *Tracker) State(entity any) EntryState {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return Detached
	}
	if e, ok := t.byPtr[v.Pointer()]; ok {
		return e.state
	}
	return Detached
}

// Len returns the number of tracked entities.
func (t *Tracker) Len() int { return len(t.entries) }

// DetectChanges compares unchanged entries with their snapshots and marks the
// edited ones Modified.
func (t *Tracker) DetectChanges() {
	for _, e := range t.entries {
		if e.state == Unchanged && e.changed() {
			e.state = Modified
		}
	}
}

// HasChanges reports whether SaveChanges would write anything.
func (t *Tracker) HasChanges() bool {
	if t.AutoDetectChanges {
		t.DetectChanges()
	}
	for _, e := range t.entries {
		if e.state == Added || e.state == Modified || e.state == Deleted {
			return true
		}
	}
	return false
}

// Clear detaches every entity.
func (t *Tracker) Clear() {
	t.entries = nil
	t.byPtr = make(map[uintptr]*entry)
	t.byKey = make(map[string]*entry)
}

func (t *Tracker) lookup(ptr reflect.Value) *entry {
	return t.byPtr[ptr.Pointer()]
}

// resolve returns the already tracked instance with the same key as ptr, if any.
func (t *Tracker) resolve(meta *entityMeta, ptr reflect.Value) (reflect.Value, bool) {
	probe := &entry{meta: meta, entity: ptr}
	id, ok := probe.identity()
	if !ok {
		return reflect.Value{}, false
	}
	if e, ok := t.byKey[id]; ok && e.state != Deleted {
		return e.entity, true
	}
	return reflect.Value{}, false
}

func (t *Tracker) attach(meta *entityMeta, ptr reflect.Value, state EntryState) *entry {
	if e := t.lookup(ptr); e != nil {
		e.state = state
		return e
	}
	e := &entry{meta: meta, entity: ptr, state: state}
	e.takeSnapshot()
	t.entries = append(t.entries, e)
	t.byPtr[ptr.Pointer()] = e
	if id, ok := e.identity(); ok {
		t.byKey[id] = e
	}
	return e
}

func (t *Tracker) detach(e *entry) {
	delete(t.byPtr, e.entity.Pointer())
	if id, ok := e.identity(); ok && t.byKey[id] == e {
		delete(t.byKey, id)
	}
	for i, cur := range t.entries {
		if cur == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	e.state = Detached
}

func (t *Tracker) pending() []*entry {
	out := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.state == Added || e.state == Modified || e.state == Deleted {
			out = append(out, e)
		}
	}
	return out
}

// acceptChanges moves every written entry to Unchanged, or drops it when deleted.
func (t *Tracker) acceptChanges(written []*entry) {
	for _, e := range written {
		switch e.state {
		case Deleted:
			t.detach(e)
		case Added, Modified:
			e.state = Unchanged
			e.takeSnapshot()
			if id, ok := e.identity(); ok {
				t.byKey[id] = e
			}
		}
	}
}
