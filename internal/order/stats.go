package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StatsService serves the per-channel aggregate projection with a short
// redis cache in front of the store. Cache misses and redis failures fall
// through to the store; the projection is always served.
type StatsService struct {
	Orders Store
	R      *redis.Client
	TTL    time.Duration
	Logger *zerolog.Logger
}

func (s *StatsService) log() *zerolog.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// Stats returns `{channel, count, sumGrandTotal}` rows for the window.
func (s *StatsService) Stats(ctx context.Context, q StatsQuery) ([]ChannelStat, error) {
	key := s.cacheKey(q)
	if s.R != nil {
		if cached, err := s.R.Get(ctx, key).Bytes(); err == nil {
			var rows []ChannelStat
			if err := json.Unmarshal(cached, &rows); err == nil {
				return rows, nil
			}
		} else if err != redis.Nil {
			s.log().Warn().Err(err).Msg("stats cache read")
		}
	}
	rows, err := s.Orders.Stats(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("aggregate orders: %w", err)
	}
	if s.R != nil && s.TTL > 0 {
		if encoded, err := json.Marshal(rows); err == nil {
			if err := s.R.Set(ctx, key, encoded, s.TTL).Err(); err != nil {
				s.log().Warn().Err(err).Msg("stats cache write")
			}
		}
	}
	return rows, nil
}

func (s *StatsService) cacheKey(q StatsQuery) string {
	return fmt.Sprintf("stats:orders:%s:%d:%d:%s:%t",
		q.TenantID, q.From.Unix(), q.To.Unix(), q.Channel, q.IncludeCancelled)
}
