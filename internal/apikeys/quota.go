package apikeys

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitchside/backend/internal/models"
)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Quota enforces per-key fixed windows of one minute and one day in Redis.
type Quota struct {
	rdb *redis.Client
	now func() time.Time
}

// NewQuota creates a Redis backed quota.
func NewQuota(rdb *redis.Client) *Quota {
	return &Quota{rdb: rdb, now: time.Now}
}

// Allow counts one request for key. Both windows are incremented in one
// round trip; the tighter remaining budget is reported.
func (q *Quota) Allow(ctx context.Context, key *models.APIKey) (Decision, error) {
	now := q.now().UTC()
	minuteKey := fmt.Sprintf("apikey:%s:m:%s", key.ID, now.Format("200601021504"))
	dayKey := fmt.Sprintf("apikey:%s:d:%s", key.ID, now.Format("20060102"))

	var minute, day *redis.IntCmd
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		minute = p.Incr(ctx, minuteKey)
		p.Expire(ctx, minuteKey, 2*time.Minute)
		day = p.Incr(ctx, dayKey)
		p.Expire(ctx, dayKey, 25*time.Hour)
		return nil
	})
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("quota pipeline: %w", err)
	}

	perMinute := int(minute.Val())
	perDay := int(day.Val())
	if perDay > key.RateLimitPerDay {
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		return Decision{Limit: key.RateLimitPerDay, RetryAfter: next.Sub(now)}, nil
	}
	if perMinute > key.RateLimitPerMinute {
		next := now.Truncate(time.Minute).Add(time.Minute)
		return Decision{Limit: key.RateLimitPerMinute, RetryAfter: next.Sub(now)}, nil
	}
	remaining := key.RateLimitPerMinute - perMinute
	if r := key.RateLimitPerDay - perDay; r < remaining {
		remaining = r
	}
	return Decision{Allowed: true, Limit: key.RateLimitPerMinute, Remaining: remaining}, nil
}
