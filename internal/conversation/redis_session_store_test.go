package conversation

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) *RedisSessionStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionStore(client, plainSeeder)
}

func TestRedisSessionStore_RoundTrip(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	msgs, err := store.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleSystem, msgs[0].Role)

	assistant := Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call-1", Name: "check_user_status", Arguments: `{"user_id":"312456789","med_name":"Advil"}`}}}
	require.NoError(t, store.Append(ctx, "s1", assistant))
	require.NoError(t, store.Append(ctx, "s1", Message{Role: RoleTool, Content: `{"ok":true}`, ToolCallID: "call-1"}))

	msgs, err = store.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "call-1", msgs[2].ToolCallID)
	assert.Equal(t, assistant.ToolCalls, msgs[1].ToolCalls)
}

func TestRedisSessionStore_AppendValidatesToolCallID(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "s1")
	require.NoError(t, err)

	err = store.Append(ctx, "s1", Message{Role: RoleTool, Content: "{}", ToolCallID: "ghost"})
	assert.ErrorIs(t, err, ErrUnknownToolCallID)
}

func TestRedisSessionStore_Trim(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		require.NoError(t, store.Append(ctx, "s1", Message{Role: RoleUser, Content: fmt.Sprintf("msg-%d", i)}))
	}

	require.NoError(t, store.Trim(ctx, "s1", 5))
	msgs, err := store.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 6)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "msg-11", msgs[5].Content)
}

func TestRedisSessionStore_EvictOverCapacity(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		_, err := store.GetOrCreate(ctx, fmt.Sprintf("s%02d", i))
		require.NoError(t, err)
	}

	require.NoError(t, store.EvictOverCapacity(ctx, 10))
	ids, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 9)
	assert.NotContains(t, ids, "s00")
	assert.NotContains(t, ids, "s01")

	// Evicted transcripts are gone, not just unindexed.
	_, err = store.Messages(ctx, "s00")
	assert.Error(t, err)
}

func TestRedisSessionStore_UnknownSession(t *testing.T) {
	store := newRedisStore(t)
	_, err := store.Messages(context.Background(), "ghost")
	assert.Error(t, err)
}
