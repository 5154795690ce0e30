package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yuzu/receptionist/internal/types"
)

// setupRedisStore creates a test Redis store with miniredis
func setupRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedis(client, opts...), mr
}

func TestRedisStore_GetNotFound(t *testing.T) {
	st, _ := setupRedisStore(t)
	_, err := st.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_GetOrCreateAndSave(t *testing.T) {
	st, mr := setupRedisStore(t, WithPrefix("test"), WithTTL(time.Hour))
	ctx := context.Background()

	sess, created, err := st.GetOrCreate(ctx, "CA9")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, types.ModeNormal, sess.Mode)
	assert.True(t, mr.Exists("test:call:CA9"))

	sess.Mode = types.ModeOfferingSMS
	sess.PendingMapLink = "https://maps.example/x"
	sess.Remember("hi", "hello", 5)
	require.NoError(t, st.Save(ctx, sess))

	again, created, err := st.GetOrCreate(ctx, "CA9")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, types.ModeOfferingSMS, again.Mode)
	assert.Equal(t, "https://maps.example/x", again.PendingMapLink)
	assert.Len(t, again.Memory, 1)
}

func TestRedisStore_TTLExpiresIdleSessions(t *testing.T) {
	st, mr := setupRedisStore(t, WithTTL(30*time.Minute))
	ctx := context.Background()

	_, _, err := st.GetOrCreate(ctx, "CA1")
	require.NoError(t, err)

	mr.FastForward(31 * time.Minute)
	_, err = st.Get(ctx, "CA1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Delete(t *testing.T) {
	st, _ := setupRedisStore(t)
	ctx := context.Background()

	_, _, err := st.GetOrCreate(ctx, "CA1")
	require.NoError(t, err)
	require.NoError(t, st.Delete(ctx, "CA1"))
	assert.ErrorIs(t, st.Delete(ctx, "CA1"), ErrNotFound)
	assert.ErrorIs(t, st.Delete(ctx, ""), ErrInvalidID)
}
