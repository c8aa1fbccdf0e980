package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/pollchat/internal/chat"
)

func TestOpenMemory(t *testing.T) {
	for _, backend := range []string{"", BackendMemory} {
		s, err := Open(context.Background(), Config{Backend: backend, Capacity: 3}, zerolog.Nop())
		require.NoError(t, err)

		ring, ok := s.(*chat.Ring)
		require.True(t, ok, "backend %q should be the in-memory ring", backend)
		assert.Equal(t, 3, ring.Cap())
		assert.NoError(t, s.Close())
	}
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"postgres without url", Config{Backend: BackendPostgres}, "DATABASE_URL"},
		{"redis without url", Config{Backend: BackendRedis}, "REDIS_URL"},
		{"unknown backend", Config{Backend: "sqlite"}, "unknown store backend"},
		{"bad redis url", Config{Backend: BackendRedis, RedisURL: "not-a-url"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), tt.cfg, zerolog.Nop())
			require.Error(t, err)
			assert.Nil(t, s)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestCapacityOrDefault(t *testing.T) {
	assert.Equal(t, chat.DefaultCapacity, capacityOrDefault(0))
	assert.Equal(t, chat.DefaultCapacity, capacityOrDefault(-5))
	assert.Equal(t, 7, capacityOrDefault(7))
}

func TestIsDuplicateKeyError(t *testing.T) {
	dup := &pgconn.PgError{Code: pgUniqueViolation}
	assert.True(t, isDuplicateKeyError(dup))
	assert.True(t, isDuplicateKeyError(fmt.Errorf("insert: %w", dup)))
	assert.False(t, isDuplicateKeyError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isDuplicateKeyError(errors.New("23505")))
	assert.False(t, isDuplicateKeyError(nil))
}
