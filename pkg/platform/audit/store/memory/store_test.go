package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "lendgate/pkg/platform/audit"
)

func TestInMemoryStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	require.NoError(t, store.Append(ctx, audit.Event{UserID: "u-1", Action: audit.ActionSimulationSucceeded}))
	require.NoError(t, store.Append(ctx, audit.Event{UserID: "u-1", Action: audit.ActionSimulationRejected, Reason: "processor error: 500 - boom"}))
	require.NoError(t, store.Append(ctx, audit.Event{UserID: "u-2", Action: audit.ActionSimulationInvalid}))

	events, err := store.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionSimulationSucceeded, events[0].Action)
	assert.Equal(t, audit.ActionSimulationRejected, events[1].Action)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestInMemoryStore_ListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.Append(ctx, audit.Event{UserID: "u-1", Action: audit.ActionSimulationFailed}))

	events, err := store.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	events[0].Reason = "mutated"

	again, err := store.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, again[0].Reason)
}

func TestInMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.Append(ctx, audit.Event{UserID: "u-1"}))

	store.Clear()

	events, err := store.ListByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, events)
}
