package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"sparkai/pkg/domain"
)

// HistoryTTL is the retention window for conversation history.
const HistoryTTL = 7 * 24 * time.Hour

// historySearchCap bounds the flat per-user search index; older entries fall
// off the end while per-session lists keep the full window.
const historySearchCap = 10000

// RedisHistoryStore logs each user/assistant exchange into three structures:
// a per-session list, a per-user set of session IDs, and a flat per-user
// list used for keyword search. All three share the retention TTL.
type RedisHistoryStore struct {
	client    *redis.Client
	ttl       time.Duration
	searchCap int64
	now       func() time.Time
}

// NewRedisHistoryStore connects to Redis at addr.
func NewRedisHistoryStore(addr, password string) *RedisHistoryStore {
	return &RedisHistoryStore{
		client:    redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		ttl:       HistoryTTL,
		searchCap: historySearchCap,
		now:       time.Now,
	}
}

func historySessionKey(userID int64, sessionID string) string {
	return fmt.Sprintf("history:user:%d:session:%s", userID, sessionID)
}

func historyIndexKey(userID int64) string {
	return fmt.Sprintf("history:user:%d:index", userID)
}

func historySearchKey(userID int64) string {
	return fmt.Sprintf("history:user:%d:search", userID)
}

// Save appends one exchange. Each write refreshes the TTL on all three
// structures, so retention is measured from the last activity.
func (h *RedisHistoryStore) Save(ctx context.Context, userID int64, sessionID, message, response string) (domain.HistoryRecord, error) {
	record := domain.HistoryRecord{
		SessionID: sessionID,
		Message:   message,
		Response:  response,
		Timestamp: h.now().UTC(),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("encode history record: %w", err)
	}

	sessionKey := historySessionKey(userID, sessionID)
	indexKey := historyIndexKey(userID)
	searchKey := historySearchKey(userID)

	pipe := h.client.TxPipeline()
	pipe.LPush(ctx, sessionKey, raw)
	pipe.Expire(ctx, sessionKey, h.ttl)
	pipe.SAdd(ctx, indexKey, sessionID)
	pipe.Expire(ctx, indexKey, h.ttl)
	pipe.LPush(ctx, searchKey, raw)
	pipe.LTrim(ctx, searchKey, 0, h.searchCap-1)
	pipe.Expire(ctx, searchKey, h.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("save history: %w", err)
	}
	return record, nil
}

// Get returns one page of a session's history, newest exchange first.
func (h *RedisHistoryStore) Get(ctx context.Context, userID int64, sessionID string, page, pageSize int) (domain.HistoryPage, error) {
	records, err := h.readList(ctx, historySessionKey(userID, sessionID))
	if err != nil {
		return domain.HistoryPage{}, err
	}
	return paginateHistory(records, page, pageSize), nil
}

// GetAll merges the retained history of every session the user has,
// newest exchange first. The per-session lists are unioned through the
// session-ID index; ordering happens here because Redis has no cross-key
// ordering of its own.
func (h *RedisHistoryStore) GetAll(ctx context.Context, userID int64, page, pageSize int) (domain.HistoryPage, error) {
	ids, err := h.Sessions(ctx, userID)
	if err != nil {
		return domain.HistoryPage{}, err
	}
	var records []domain.HistoryRecord
	for _, id := range ids {
		sessionRecords, err := h.readList(ctx, historySessionKey(userID, id))
		if err != nil {
			return domain.HistoryPage{}, err
		}
		records = append(records, sessionRecords...)
	}
	return paginateHistory(records, page, pageSize), nil
}

// Sessions lists the session IDs with retained history for the user.
func (h *RedisHistoryStore) Sessions(ctx context.Context, userID int64) ([]string, error) {
	ids, err := h.client.SMembers(ctx, historyIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list history sessions: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Search scans the user's flat index for exchanges whose message or response
// contains the keyword, case-insensitively, newest first. Coverage is capped
// at the index bound.
func (h *RedisHistoryStore) Search(ctx context.Context, userID int64, keyword string, page, pageSize int) (domain.HistoryPage, error) {
	records, err := h.readList(ctx, historySearchKey(userID))
	if err != nil {
		return domain.HistoryPage{}, err
	}
	needle := strings.ToLower(keyword)
	matched := make([]domain.HistoryRecord, 0, len(records))
	for _, record := range records {
		if strings.Contains(strings.ToLower(record.Message), needle) ||
			strings.Contains(strings.ToLower(record.Response), needle) {
			matched = append(matched, record)
		}
	}
	return paginateHistory(matched, page, pageSize), nil
}

// Delete removes the exchange with the given timestamp from the session's
// list. The flat search index keeps its copy until it ages out; search can
// surface deleted exchanges until then.
func (h *RedisHistoryStore) Delete(ctx context.Context, userID int64, sessionID string, timestamp time.Time) (bool, error) {
	key := historySessionKey(userID, sessionID)
	raws, err := h.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return false, fmt.Errorf("read history: %w", err)
	}
	for _, raw := range raws {
		var record domain.HistoryRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			continue
		}
		if record.Timestamp.Equal(timestamp) {
			if err := h.client.LRem(ctx, key, 1, raw).Err(); err != nil {
				return false, fmt.Errorf("delete history record: %w", err)
			}
			return true, nil
		}
	}
	return false, nil
}

func (h *RedisHistoryStore) readList(ctx context.Context, key string) ([]domain.HistoryRecord, error) {
	raws, err := h.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	records := make([]domain.HistoryRecord, 0, len(raws))
	for _, raw := range raws {
		var record domain.HistoryRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func paginateHistory(records []domain.HistoryRecord, page, pageSize int) domain.HistoryPage {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	total := len(records)
	start := (page - 1) * pageSize
	if start >= total {
		return domain.HistoryPage{Total: total, Page: page, PageSize: pageSize, Items: []domain.HistoryRecord{}}
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return domain.HistoryPage{Total: total, Page: page, PageSize: pageSize, Items: records[start:end]}
}

// Close releases the Redis connection.
func (h *RedisHistoryStore) Close() error {
	return h.client.Close()
}
