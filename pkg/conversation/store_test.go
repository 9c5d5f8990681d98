package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetOrCreate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", first.ID)
	assert.Zero(t, first.Len())

	second, err := store.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestMemoryStoreAppendUnknownSession(t *testing.T) {
	store := NewMemoryStore()
	err := store.Append(context.Background(), "missing", UserMessage("hi"))
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.History(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStoreAppendKeepsOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.GetOrCreate(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, "s1", UserMessage("a"), AssistantMessage("b")))
	require.NoError(t, store.Append(ctx, "s1", UserMessage("a"), AssistantMessage("b")))
	require.NoError(t, store.Append(ctx, "s1"))

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	// 重复内容也不去重
	assert.Equal(t, []Message{
		UserMessage("a"), AssistantMessage("b"),
		UserMessage("a"), AssistantMessage("b"),
	}, history)
}

func TestMemoryStoreHistoryIsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "s1", SystemMessage("sys"), UserMessage("q")))

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	history[0] = UserMessage("changed")

	again, err := store.History(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, SystemMessage("sys"), again[0])
}

func TestMemoryStoreConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const workers = 32
	sessions := make([]*Session, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := store.GetOrCreate(ctx, "shared")
			if err == nil {
				sessions[i] = sess
			}
		}(i)
	}
	wg.Wait()

	for _, sess := range sessions {
		assert.Same(t, sessions[0], sess)
	}
	assert.Len(t, store.Sessions(), 1)
}

func TestMemoryStoreDistinctSessionsConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const sessionsN, turns = 8, 20
	var wg sync.WaitGroup
	for i := 0; i < sessionsN; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			if _, err := store.GetOrCreate(ctx, id); err != nil {
				return
			}
			for j := 0; j < turns; j++ {
				_ = store.Append(ctx, id,
					UserMessage(fmt.Sprintf("%s-q%d", id, j)),
					AssistantMessage(fmt.Sprintf("%s-a%d", id, j)))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < sessionsN; i++ {
		id := fmt.Sprintf("s%d", i)
		history, err := store.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 2*turns)
		for j := 0; j < turns; j++ {
			assert.Equal(t, UserMessage(fmt.Sprintf("%s-q%d", id, j)), history[2*j])
			assert.Equal(t, AssistantMessage(fmt.Sprintf("%s-a%d", id, j)), history[2*j+1])
		}
	}
}

func TestMemoryStoreSameSessionPairsNeverInterleave(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, err := store.GetOrCreate(ctx, "shared")
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Append(ctx, "shared",
				UserMessage(fmt.Sprintf("q%d", i)),
				AssistantMessage(fmt.Sprintf("a%d", i)))
		}(i)
	}
	wg.Wait()

	history, err := store.History(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, history, 2*writers)
	for j := 0; j < len(history); j += 2 {
		require.Equal(t, RoleUser, history[j].Role)
		require.Equal(t, RoleAssistant, history[j+1].Role)
		assert.Equal(t, "a"+history[j].Content[1:], history[j+1].Content)
	}
}
