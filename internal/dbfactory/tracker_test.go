package dbfactory

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackedMeta(t *testing.T) *entityMeta {
	t.Helper()
	m, err := metaFor(reflect.TypeFor[byName](), "posts")
	require.NoError(t, err)
	return m
}

func TestTracker_DetectChanges(t *testing.T) {
	tr := newTracker(true, false, TrackAll)
	m := trackedMeta(t)

	p := &byName{ID: 1, Title: "draft"}
	tr.attach(m, reflect.ValueOf(p), Unchanged)
	assert.Equal(t, Unchanged, tr.State(p))
	assert.False(t, tr.HasChanges())

	p.Title = "final"
	assert.True(t, tr.HasChanges())
	assert.Equal(t, Modified, tr.State(p))
}

func TestTracker_NoAutoDetect(t *testing.T) {
	tr := newTracker(false, false, NoTracking)
	m := trackedMeta(t)

	p := &byName{ID: 1, Title: "draft"}
	tr.attach(m, reflect.ValueOf(p), Unchanged)
	p.Title = "final"

	// Без автоопределения правка видна только после явного DetectChanges
	assert.False(t, tr.HasChanges())
	tr.DetectChanges()
	assert.True(t, tr.HasChanges())
}

func TestTracker_IdentityResolution(t *testing.T) {
	tr := newTracker(true, false, TrackAll)
	m := trackedMeta(t)

	first := &byName{ID: 5, Title: "a"}
	tr.attach(m, reflect.ValueOf(first), Unchanged)

	got, ok := tr.resolve(m, reflect.ValueOf(&byName{ID: 5}))
	require.True(t, ok)
	assert.Same(t, first, got.Interface().(*byName))

	// Новая сущность без ключа не разрешается
	_, ok = tr.resolve(m, reflect.ValueOf(&byName{}))
	assert.False(t, ok)
}

func TestTracker_AcceptChanges(t *testing.T) {
	tr := newTracker(true, false, TrackAll)
	m := trackedMeta(t)

	added := &byName{Title: "new"}
	removed := &byName{ID: 2, Title: "old"}
	tr.attach(m, reflect.ValueOf(added), Added)
	tr.attach(m, reflect.ValueOf(removed), Deleted)

	pending := tr.pending()
	require.Len(t, pending, 2)

	// Ключ заполнен при вставке
	added.ID = 3
	tr.acceptChanges(pending)

	assert.Equal(t, Unchanged, tr.State(added))
	assert.Equal(t, Detached, tr.State(removed))
	assert.Equal(t, 1, tr.Len())

	_, ok := tr.resolve(m, reflect.ValueOf(&byName{ID: 3}))
	assert.True(t, ok)
	assert.False(t, tr.HasChanges())
}

func TestTracker_Clear(t *testing.T) {
	tr := newTracker(true, false, TrackAll)
	p := &byName{ID: 1}
	tr.attach(trackedMeta(t), reflect.ValueOf(p), Modified)

	tr.Clear()
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, Detached, tr.State(p))
	assert.Equal(t, Detached, tr.State(nil))
}

func TestEntryState_String(t *testing.T) {
	assert.Equal(t, "added", Added.String())
	assert.Equal(t, "deleted", Deleted.String())
	assert.Equal(t, "unknown", EntryState(42).String())
}
