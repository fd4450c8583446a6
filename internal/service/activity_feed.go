package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultFeedSize = 200

// ActivityEvent es una entrada del feed de actividad reciente.
type ActivityEvent struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// ActivityFeed guarda eventos de autenticación recientes para la vista de
// administración. Es un buffer acotado y efímero, no un log de auditoría:
// registrar es best-effort y nunca falla la operación que lo origina.
type ActivityFeed interface {
	Record(message string)
	Recent(ctx context.Context, limit int) ([]ActivityEvent, error)
}

type memoryActivityFeed struct {
	mu     sync.Mutex
	max    int
	events []ActivityEvent
}

func NewMemoryActivityFeed(max int) ActivityFeed {
	if max <= 0 {
		max = defaultFeedSize
	}
	return &memoryActivityFeed{max: max}
}

func (f *memoryActivityFeed) Record(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event := ActivityEvent{At: time.Now().UTC(), Message: message}
	f.events = append([]ActivityEvent{event}, f.events...)
	if len(f.events) > f.max {
		f.events = f.events[:f.max]
	}
}

func (f *memoryActivityFeed) Recent(_ context.Context, limit int) ([]ActivityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.events) {
		limit = len(f.events)
	}
	out := make([]ActivityEvent, limit)
	copy(out, f.events[:limit])
	return out, nil
}

type redisActivityFeed struct {
	client *redis.Client
	key    string
	max    int64
}

func NewRedisActivityFeed(client *redis.Client, max int) ActivityFeed {
	if client == nil {
		return nil
	}
	if max <= 0 {
		max = defaultFeedSize
	}
	return &redisActivityFeed{
		client: client,
		key:    "auth:activity",
		max:    int64(max),
	}
}

func (f *redisActivityFeed) Record(message string) {
	payload, err := json.Marshal(ActivityEvent{At: time.Now().UTC(), Message: message})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	pipe := f.client.TxPipeline()
	pipe.LPush(ctx, f.key, payload)
	pipe.LTrim(ctx, f.key, 0, f.max-1)
	_, _ = pipe.Exec(ctx)
}

func (f *redisActivityFeed) Recent(ctx context.Context, limit int) ([]ActivityEvent, error) {
	if limit <= 0 || int64(limit) > f.max {
		limit = int(f.max)
	}
	raw, err := f.client.LRange(ctx, f.key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]ActivityEvent, 0, len(raw))
	for _, item := range raw {
		var event ActivityEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
