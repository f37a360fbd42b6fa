package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/envlytics/analyte-resolver/internal/infrastructure/monitoring/logging"
	"github.com/envlytics/analyte-resolver/pkg/errors"
)

// DailyCapGate enforces the global synonym promotion cap with one Redis
// counter per UTC day.  The counter expires after 48 hours so abandoned days
// clean themselves up.
type DailyCapGate struct {
	client *Client
	logger logging.Logger
	cap    int
}

// NewDailyCapGate constructs the gate.  cap <= 0 disables the limit.
func NewDailyCapGate(client *Client, log logging.Logger, cap int) *DailyCapGate {
	return &DailyCapGate{client: client, logger: log, cap: cap}
}

// TryAcquire consumes one slot of the day's cap.  It returns false when the
// cap is exhausted; the slot is not consumed in that case.
func (g *DailyCapGate) TryAcquire(ctx context.Context, day time.Time) (bool, error) {
	if g.cap <= 0 {
		return true, nil
	}
	key := g.client.Key("synonym_cap", day.UTC().Format("2006-01-02"))

	n, err := g.client.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.CodeCacheError, "failed to bump daily cap counter")
	}
	if n == 1 {
		if err := g.client.rdb.Expire(ctx, key, 48*time.Hour).Err(); err != nil {
			g.logger.Warn("failed to set cap counter expiry", logging.String("key", key), logging.Err(err))
		}
	}
	if n > int64(g.cap) {
		// Undo the bump so a slot freed later (never, today) is not lost.
		if err := g.client.rdb.Decr(ctx, key).Err(); err != nil {
			g.logger.Warn("failed to release cap slot", logging.String("key", key), logging.Err(err))
		}
		return false, nil
	}
	return true, nil
}

// Remaining reports how many promotions the day has left.
func (g *DailyCapGate) Remaining(ctx context.Context, day time.Time) (int, error) {
	if g.cap <= 0 {
		return int(^uint(0) >> 1), nil
	}
	key := g.client.Key("synonym_cap", day.UTC().Format("2006-01-02"))
	n, err := g.client.rdb.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return 0, errors.Wrap(err, errors.CodeCacheError, "failed to read daily cap counter")
	}
	left := g.cap - n
	if left < 0 {
		left = 0
	}
	return left, nil
}
