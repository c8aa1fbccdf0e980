package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/pollchat/internal/chat"
)

// redisURL points at GOCHAT_TEST_REDIS_URL when set and at an in-process
// miniredis otherwise.
func redisURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("GOCHAT_TEST_REDIS_URL"); url != "" {
		return url
	}
	return "redis://" + miniredis.RunT(t).Addr()
}

func newTestRedisStore(t *testing.T, capacity int) *RedisStore {
	t.Helper()
	ctx := context.Background()
	prefix := "gochat-test:" + strings.ReplaceAll(t.Name(), "/", ":")

	s, err := NewRedisStore(ctx, redisURL(t), capacity, prefix)
	require.NoError(t, err)

	keys := []string{s.messagesKey(), s.idsKey(), s.orderKey()}
	require.NoError(t, s.client.Del(ctx, keys...).Err())
	t.Cleanup(func() {
		_ = s.client.Del(context.Background(), keys...).Err()
		_ = s.Close()
	})
	return s
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T, capacity int) chat.Store {
		return newTestRedisStore(t, capacity)
	})
}

func TestRedisEvictionForgetsIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t, 2)

	for i := 1; i <= 4; i++ {
		require.NoError(t, s.Append(ctx, testMessage(i)))
	}

	held, err := s.client.SMembers(ctx, s.idsKey()).Result()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"msg-003", "msg-004"}, held)

	order, err := s.client.LRange(ctx, s.orderKey(), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-003", "msg-004"}, order)

	// An evicted id may be appended again.
	assert.NoError(t, s.Append(ctx, testMessage(1)))
}

var errInjected = errors.New("injected failure")

// failingHook fails every command whose name is in fail.
type failingHook struct {
	fail map[string]bool
}

func (failingHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h failingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if h.fail[cmd.Name()] {
			cmd.SetErr(errInjected)
			return errInjected
		}
		return next(ctx, cmd)
	}
}

func (failingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

// TestRedisFailedAppendLeavesNoTrace verifies that an append that fails at
// the server changes neither the buffer nor the id set.
func TestRedisFailedAppendLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	s, err := NewRedisStore(ctx, "redis://"+mr.Addr(), 1, "gochat-test:fail")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(ctx, testMessage(1)))

	s.client.AddHook(failingHook{fail: map[string]bool{"evalsha": true, "eval": true}})
	err = s.Append(ctx, testMessage(2))
	assert.ErrorIs(t, err, chat.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errInjected)

	all, err := s.Since(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-001"}, ids(all))

	held, err := s.client.SMembers(ctx, s.idsKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-001"}, held)
}

// TestRedisOpen verifies the factory against a live server.
func TestRedisOpen(t *testing.T) {
	s, err := Open(context.Background(), Config{
		Backend:   BackendRedis,
		RedisURL:  redisURL(t),
		Capacity:  3,
		KeyPrefix: "gochat-test:open",
	}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	rs, ok := s.(*RedisStore)
	require.True(t, ok)
	assert.Equal(t, 3, rs.capacity)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestNewRedisStoreDefaults(t *testing.T) {
	s := newRedisStore(nil, 0, "")
	assert.Equal(t, "gochat:messages", s.messagesKey())
	assert.Equal(t, "gochat:ids", s.idsKey())
	assert.Equal(t, "gochat:order", s.orderKey())
	assert.Equal(t, chat.DefaultCapacity, s.capacity)
}
