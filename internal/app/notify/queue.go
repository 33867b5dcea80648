package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// ErrQueueDisabled is returned by a Queue or Limiter built without Redis.
var ErrQueueDisabled = errors.New("notification queue disabled (missing redis)")

const (
	pendingKey   = "pounce:notify:pending"
	payloadKey   = "pounce:notify:payload"
	countKeyBase = "pounce:notify:count"
)

// PendingAlert is a significant drop waiting out its confirmation delay.
type PendingAlert struct {
	ItemID      string          `json:"item_id"`
	UserID      string          `json:"user_id"`
	PriceBefore decimal.Decimal `json:"price_before"`
	PriceAfter  decimal.Decimal `json:"price_after"`
	ObservedAt  time.Time       `json:"observed_at"`
	DueAt       time.Time       `json:"due_at"`
	Attempts    int             `json:"attempts,omitempty"`
}

// Queue keeps at most one pending alert per item in a sorted set scored by
// due time. The first alert for an item wins until it is claimed.
type Queue struct {
	rdb redis.Cmdable
}

func NewQueue(rdb *redis.Client) *Queue {
	if rdb == nil {
		return &Queue{}
	}
	return &Queue{rdb: rdb}
}

func (q *Queue) Enabled() bool { return q != nil && q.rdb != nil }

func (q *Queue) Schedule(ctx context.Context, a PendingAlert) error {
	if !q.Enabled() {
		return ErrQueueDisabled
	}
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode pending alert: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZAddNX(ctx, pendingKey, redis.Z{Score: float64(a.DueAt.UnixMilli()), Member: a.ItemID})
	pipe.HSetNX(ctx, payloadKey, a.ItemID, body)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedule alert for item %s: %w", a.ItemID, err)
	}
	return nil
}

// claimScript removes one member and its payload atomically, so a Schedule
// for the same item cannot land in between.
var claimScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return false
end
local body = redis.call('HGET', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return body
`)

// Due claims up to limit alerts due at or before now. A member is claimed by
// whoever removes it from the sorted set, so concurrent workers never
// deliver the same alert twice.
func (q *Queue) Due(ctx context.Context, now time.Time, limit int) ([]PendingAlert, error) {
	if !q.Enabled() {
		return nil, ErrQueueDisabled
	}
	if limit <= 0 {
		limit = 50
	}

	ids, err := q.rdb.ZRangeByScore(ctx, pendingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due alerts: %w", err)
	}

	out := make([]PendingAlert, 0, len(ids))
	for _, id := range ids {
		body, err := claimScript.Run(ctx, q.rdb, []string{pendingKey, payloadKey}, id).Text()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("claim alert %s: %w", id, err)
		}

		var a PendingAlert
		if err := json.Unmarshal([]byte(body), &a); err != nil {
			return out, fmt.Errorf("decode alert %s: %w", id, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Limiter caps notifications per user per UTC day.
type Limiter struct {
	rdb redis.Cmdable
	max int
}

func NewLimiter(rdb *redis.Client, maxPerDay int) *Limiter {
	l := &Limiter{max: maxPerDay}
	if rdb != nil {
		l.rdb = rdb
	}
	return l
}

func countKey(userID string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s", countKeyBase, userID, now.UTC().Format("20060102"))
}

// Allow takes one slot from the user's daily budget.
func (l *Limiter) Allow(ctx context.Context, userID string, now time.Time) (bool, error) {
	if l == nil || l.rdb == nil {
		return false, ErrQueueDisabled
	}
	if l.max <= 0 {
		return true, nil
	}

	key := countKey(userID, now)
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", key, err)
	}
	if n == 1 {
		// Outlive the day so late dispatches near midnight still count.
		_ = l.rdb.Expire(ctx, key, 48*time.Hour).Err()
	}
	return n <= int64(l.max), nil
}

// Release gives back a slot taken by Allow for a notification that was never
// delivered.
func (l *Limiter) Release(ctx context.Context, userID string, now time.Time) error {
	if l == nil || l.rdb == nil {
		return ErrQueueDisabled
	}
	if l.max <= 0 {
		return nil
	}
	key := countKey(userID, now)
	if err := l.rdb.Decr(ctx, key).Err(); err != nil {
		return fmt.Errorf("decr %s: %w", key, err)
	}
	return nil
}
