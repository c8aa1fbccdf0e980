package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Tyrowin/pollchat/internal/chat"
)

const defaultKeyPrefix = "gochat"

// RedisStore keeps the message buffer in a Redis list of JSON documents,
// oldest at the head, with a companion set of held ids.
type RedisStore struct {
	client   *redis.Client
	capacity int
	prefix   string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string, capacity int, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return newRedisStore(client, capacity, prefix), nil
}

func newRedisStore(client *redis.Client, capacity int, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, capacity: capacityOrDefault(capacity), prefix: prefix}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) messagesKey() string {
	return fmt.Sprintf("%s:messages", s.prefix)
}

func (s *RedisStore) idsKey() string {
	return fmt.Sprintf("%s:ids", s.prefix)
}

func (s *RedisStore) orderKey() string {
	return fmt.Sprintf("%s:order", s.prefix)
}

// appendScript adds a message and trims the buffer in one step. The order
// list mirrors the message list with bare ids so evicted ids can be removed
// from the id set without decoding the documents.
//
// KEYS: ids set, messages list, order list. ARGV: id, document, capacity.
// Returns 0 when the id is already held.
var appendScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('RPUSH', KEYS[2], ARGV[2])
redis.call('RPUSH', KEYS[3], ARGV[1])
local excess = redis.call('LLEN', KEYS[2]) - tonumber(ARGV[3])
for i = 1, excess do
	redis.call('LPOP', KEYS[2])
	redis.call('SREM', KEYS[1], redis.call('LPOP', KEYS[3]))
end
return 1
`)

// Append pushes msg to the tail of the list and pops whatever no longer
// fits. The duplicate check, push and eviction run as one script, so a
// failed append leaves nothing behind.
func (s *RedisStore) Append(ctx context.Context, msg chat.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", chat.ErrStoreUnavailable, err)
	}

	keys := []string{s.idsKey(), s.messagesKey(), s.orderKey()}
	added, err := appendScript.Run(ctx, s.client, keys, msg.ID, data, s.capacity).Int()
	if err != nil {
		return fmt.Errorf("%w: %w", chat.ErrStoreUnavailable, err)
	}
	if added == 0 {
		return fmt.Errorf("%w: %s", chat.ErrDuplicateMessage, msg.ID)
	}
	return nil
}

// Since reads the whole list and applies the cursor to it.
func (s *RedisStore) Since(ctx context.Context, cursor string) ([]chat.Message, error) {
	results, err := s.client.LRange(ctx, s.messagesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chat.ErrStoreUnavailable, err)
	}

	messages := make([]chat.Message, 0, len(results))
	for _, data := range results {
		var msg chat.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			return nil, fmt.Errorf("%w: decode message: %w", chat.ErrStoreUnavailable, err)
		}
		messages = append(messages, msg)
	}

	return chat.Since(messages, cursor), nil
}
