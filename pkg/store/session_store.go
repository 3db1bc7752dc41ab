package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"sparkai/pkg/domain"
)

// SessionTTL is the sliding idle lifetime of a conversation session.
const SessionTTL = 30 * time.Minute

const sessionIndexKey = "session:index"

// RedisSessionStore keeps each session as one JSON blob under a TTL key.
// Appends are read-modify-write, so concurrent appends to the same session
// can lose messages; callers serialize per session when that matters.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisSessionStore connects to Redis at addr.
func NewRedisSessionStore(addr, password string) *RedisSessionStore {
	return &RedisSessionStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		ttl:    SessionTTL,
		now:    time.Now,
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

// Create allocates a new empty session and returns it.
func (s *RedisSessionStore) Create(ctx context.Context) (domain.Session, error) {
	now := s.now().UTC()
	session := domain.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		Messages:  []domain.SessionMessage{},
	}
	if err := s.write(ctx, session); err != nil {
		return domain.Session{}, err
	}
	if err := s.client.SAdd(ctx, sessionIndexKey, session.ID).Err(); err != nil {
		return domain.Session{}, fmt.Errorf("index session: %w", err)
	}
	return session, nil
}

// Get returns the session, or (nil, nil) when it is absent or expired.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// Append adds one message and refreshes the TTL. Appending to an absent or
// expired session is a silent no-op; expiry never resurrects a session.
func (s *RedisSessionStore) Append(ctx context.Context, id, role, content string, metadata map[string]string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	session.Messages = append(session.Messages, domain.SessionMessage{
		Role:      role,
		Content:   content,
		Timestamp: s.now().UTC(),
		Metadata:  metadata,
	})
	return s.write(ctx, *session)
}

// Touch resets the idle countdown of a live session without altering it.
func (s *RedisSessionStore) Touch(ctx context.Context, id string) error {
	if err := s.client.Expire(ctx, sessionKey(id), s.ttl).Err(); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// List returns one page of summaries over live sessions. Expired sessions
// still present in the index are skipped.
func (s *RedisSessionStore) List(ctx context.Context, page, pageSize int) ([]domain.SessionInfo, int, error) {
	ids, err := s.client.SMembers(ctx, sessionIndexKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	infos := make([]domain.SessionInfo, 0, len(ids))
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if session == nil {
			// Expired entry left in the index; drop it lazily.
			_ = s.client.SRem(ctx, sessionIndexKey, id).Err()
			continue
		}
		info := domain.SessionInfo{
			SessionID:    session.ID,
			CreatedAt:    session.CreatedAt,
			ExpiresAt:    session.ExpiresAt,
			MessageCount: len(session.Messages),
		}
		if n := len(session.Messages); n > 0 {
			ts := session.Messages[n-1].Timestamp
			info.LastMessageTime = &ts
		}
		infos = append(infos, info)
	}
	total := len(infos)
	start := (page - 1) * pageSize
	if start >= total {
		return []domain.SessionInfo{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return infos[start:end], total, nil
}

func (s *RedisSessionStore) write(ctx context.Context, session domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
