package session

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/models"
)

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("KOTAE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KOTAE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	clock := newFakeClock()
	store, err := NewRedisStore(ctx, addr, "", 0, Options{Timeout: time.Minute, MaxHistory: 3}, WithClock(clock.Now))
	require.NoError(t, err)
	defer store.Close()

	id := "test-" + uuid.NewString()
	t.Cleanup(func() { store.rdb.Del(context.Background(), redisKey(id)) })

	st, err := store.GetOrCreate(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, st.History)

	item := &models.CatalogItem{ID: "1", Description: "hybrid"}
	for i := 0; i < 4; i++ {
		require.NoError(t, store.RecordExchange(ctx, id, item, fmt.Sprintf("q%d", i), "a"))
	}
	st, err = store.GetOrCreate(ctx, id)
	require.NoError(t, err)
	require.Len(t, st.History, 3)
	assert.Equal(t, "q1", st.History[0].Question)
	assert.Equal(t, "1", st.Item.ID)

	clock.Advance(2 * time.Minute)
	st, err = store.GetOrCreate(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, st.History, "session idle past timeout starts fresh")
}
