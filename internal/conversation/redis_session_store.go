package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const sessionTTL = 24 * time.Hour

const sessionIndexKey = "sessions:created"

// RedisSessionStore persists transcripts in Redis: one JSON blob per session
// plus a creation-time index used for capacity eviction. Entries expire with
// the session TTL. Concurrent appends to the same session are not serialized
// here; the design assumes at most one in-flight turn per session.
type RedisSessionStore struct {
	redis  *redis.Client
	seed   SessionSeeder
	tracer trace.Tracer
}

var _ SessionStore = (*RedisSessionStore)(nil)

func NewRedisSessionStore(redisClient *redis.Client, seed SessionSeeder) *RedisSessionStore {
	if redisClient == nil {
		panic("conversation: redis client cannot be nil")
	}
	if seed == nil {
		panic("conversation: session seeder cannot be nil")
	}
	return &RedisSessionStore{
		redis:  redisClient,
		seed:   seed,
		tracer: otel.Tracer("pharmacy.internal.conversation.sessions"),
	}
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

func (s *RedisSessionStore) load(ctx context.Context, sessionID string) ([]Message, error) {
	data, err := s.redis.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("conversation: unknown session %s", sessionID)
		}
		return nil, fmt.Errorf("conversation: failed to load session: %w", err)
	}
	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode session: %w", err)
	}
	return messages, nil
}

func (s *RedisSessionStore) save(ctx context.Context, sessionID string, messages []Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(sessionID), data, sessionTTL).Err(); err != nil {
		return fmt.Errorf("conversation: failed to persist session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) GetOrCreate(ctx context.Context, sessionID string) ([]Message, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.sessions.get_or_create")
	defer span.End()

	messages, err := s.load(ctx, sessionID)
	if err == nil {
		return messages, nil
	}

	messages = s.seed(ctx, sessionID)
	if err := s.save(ctx, sessionID, messages); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.redis.ZAddNX(ctx, sessionIndexKey, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: sessionID,
	}).Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to index session: %w", err)
	}
	return messages, nil
}

func (s *RedisSessionStore) Append(ctx context.Context, sessionID string, msgs ...Message) error {
	ctx, span := s.tracer.Start(ctx, "conversation.sessions.append")
	defer span.End()

	messages, err := s.load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	merged, err := appendValidated(messages, msgs)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.save(ctx, sessionID, merged); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *RedisSessionStore) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.sessions.messages")
	defer span.End()

	messages, err := s.load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return messages, nil
}

func (s *RedisSessionStore) Trim(ctx context.Context, sessionID string, maxMessages int) error {
	ctx, span := s.tracer.Start(ctx, "conversation.sessions.trim")
	defer span.End()

	messages, err := s.load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	trimmed := trimTranscript(messages, maxMessages)
	if len(trimmed) == len(messages) {
		return nil
	}
	if err := s.save(ctx, sessionID, trimmed); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *RedisSessionStore) EvictOverCapacity(ctx context.Context, maxSessions int) error {
	if maxSessions <= 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "conversation.sessions.evict")
	defer span.End()

	total, err := s.redis.ZCard(ctx, sessionIndexKey).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to count sessions: %w", err)
	}
	if total <= int64(maxSessions) {
		return nil
	}

	evict := int64(maxSessions / 5)
	if evict < 1 {
		evict = 1
	}
	victims, err := s.redis.ZRange(ctx, sessionIndexKey, 0, evict-1).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to pick eviction victims: %w", err)
	}
	if len(victims) == 0 {
		return nil
	}

	pipe := s.redis.TxPipeline()
	for _, id := range victims {
		pipe.Del(ctx, sessionKey(id))
		pipe.ZRem(ctx, sessionIndexKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to evict sessions: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) List(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.sessions.list")
	defer span.End()

	ids, err := s.redis.ZRange(ctx, sessionIndexKey, 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to list sessions: %w", err)
	}
	return ids, nil
}
