// ABOUTME: Tests for the in-process collaboration hub
// ABOUTME: Write echoes, subscription fan-out and presence lifecycle
package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedStoreGetSet(t *testing.T) {
	hub := NewMemoryHub()
	shared := hub.Connect().Shared()
	ctx := context.Background()

	_, err := shared.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, shared.Set(ctx, "k", []byte("v1")))
	got, err := shared.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, shared.Delete(ctx, "k"))
	_, err = shared.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWritesEchoToAllSubscribersIncludingWriter(t *testing.T) {
	hub := NewMemoryHub()
	sessA := hub.Connect()
	sessB := hub.Connect()

	var fromA, fromB [][]byte
	defer sessA.Shared().Subscribe("k", func(v []byte) { fromA = append(fromA, v) })()
	defer sessB.Shared().Subscribe("k", func(v []byte) { fromB = append(fromB, v) })()

	require.NoError(t, sessA.Shared().Set(context.Background(), "k", []byte("v1")))

	require.Len(t, fromA, 1, "the service echoes the writer's own write")
	require.Len(t, fromB, 1)
	assert.Equal(t, []byte("v1"), fromB[0])
}

func TestSubscribeIsPerKey(t *testing.T) {
	hub := NewMemoryHub()
	sess := hub.Connect()

	calls := 0
	defer sess.Shared().Subscribe("watched", func([]byte) { calls++ })()

	require.NoError(t, sess.Shared().Set(context.Background(), "other", []byte("x")))
	assert.Zero(t, calls)
}

func TestConnIDsAreUniqueAndOrdered(t *testing.T) {
	hub := NewMemoryHub()
	a := hub.Connect()
	b := hub.Connect()

	assert.NotEqual(t, a.ConnID(), b.ConnID())
	assert.Less(t, a.ConnID(), b.ConnID())
}

func TestPresenceSlotDisappearsOnClose(t *testing.T) {
	hub := NewMemoryHub()
	sessA := hub.Connect()
	sessB := hub.Connect()
	ctx := context.Background()

	require.NoError(t, sessA.Presence().Set(ctx, "selection", []byte(`["x"]`)))

	peers, err := sessB.Presence().Peers(ctx)
	require.NoError(t, err)
	require.Contains(t, peers, sessA.ConnID())
	assert.Equal(t, []byte(`["x"]`), peers[sessA.ConnID()]["selection"])

	require.NoError(t, sessA.Close())

	peers, err = sessB.Presence().Peers(ctx)
	require.NoError(t, err)
	assert.NotContains(t, peers, sessA.ConnID(), "a closed session's slot is gone")
}

func TestBoardKeys(t *testing.T) {
	assert.Equal(t, "board:b1:objects", ObjectsKey("b1"))
	assert.Equal(t, "board:b1:meta", MetaKey("b1"))
}
