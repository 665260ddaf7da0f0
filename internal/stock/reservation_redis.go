package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisReservationStore keeps cart holds in Redis hashes. The hash TTL acts
// as the reservation TTL: every mutation refreshes it (lastTouch semantics),
// and Redis expiry is the release. An index set tracks live carts so
// per-product totals can be summed; the sweeper trims index members whose
// hash has expired.
type RedisReservationStore struct {
	Client *redis.Client
	Prefix string
}

func (s RedisReservationStore) cartKey(tenantID, cartID string) string {
	return fmt.Sprintf("%sresv:%s:%s", s.prefix(), tenantID, cartID)
}

func (s RedisReservationStore) indexKey() string {
	return s.prefix() + "resv:index"
}

func (s RedisReservationStore) prefix() string {
	if s.Prefix == "" {
		return ""
	}
	return s.Prefix + ":"
}

// SetHold implements ReservationStore.
func (s RedisReservationStore) SetHold(ctx context.Context, tenantID, cartID string, productID uuid.UUID, units float64, ttl time.Duration) error {
	if s.Client == nil {
		return errors.New("stock: redis client not configured")
	}
	key := s.cartKey(tenantID, cartID)
	pipe := s.Client.TxPipeline()
	pipe.HSet(ctx, key, productID.String(), strconv.FormatFloat(units, 'f', -1, 64))
	pipe.PExpire(ctx, key, ttl)
	pipe.SAdd(ctx, s.indexKey(), tenantID+"|"+cartID)
	_, err := pipe.Exec(ctx)
	return err
}

// ReleaseCart implements ReservationStore.
func (s RedisReservationStore) ReleaseCart(ctx context.Context, tenantID, cartID string) error {
	if s.Client == nil {
		return errors.New("stock: redis client not configured")
	}
	pipe := s.Client.TxPipeline()
	pipe.Del(ctx, s.cartKey(tenantID, cartID))
	pipe.SRem(ctx, s.indexKey(), tenantID+"|"+cartID)
	_, err := pipe.Exec(ctx)
	return err
}

// ReleaseProduct implements ReservationStore.
func (s RedisReservationStore) ReleaseProduct(ctx context.Context, tenantID, cartID string, productID uuid.UUID) error {
	if s.Client == nil {
		return errors.New("stock: redis client not configured")
	}
	return s.Client.HDel(ctx, s.cartKey(tenantID, cartID), productID.String()).Err()
}

// CartHolds implements ReservationStore.
func (s RedisReservationStore) CartHolds(ctx context.Context, tenantID, cartID string) (map[uuid.UUID]float64, error) {
	if s.Client == nil {
		return nil, errors.New("stock: redis client not configured")
	}
	fields, err := s.Client.HGetAll(ctx, s.cartKey(tenantID, cartID)).Result()
	if err != nil {
		return nil, err
	}
	return parseHolds(fields)
}

// takeScript atomically reads and deletes a cart hash so a commit cannot race
// the TTL expiry or the sweeper.
const takeScript = `local fields = redis.call("HGETALL", KEYS[1])
if #fields == 0 then
  return nil
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return fields`

// TakeCart implements ReservationStore.
func (s RedisReservationStore) TakeCart(ctx context.Context, tenantID, cartID string) (map[uuid.UUID]float64, bool, error) {
	if s.Client == nil {
		return nil, false, errors.New("stock: redis client not configured")
	}
	res, err := s.Client.Eval(ctx, takeScript,
		[]string{s.cartKey(tenantID, cartID), s.indexKey()},
		tenantID+"|"+cartID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	raw, ok := res.([]any)
	if !ok || len(raw) == 0 {
		return nil, false, nil
	}
	fields := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		k, _ := raw[i].(string)
		v, _ := raw[i+1].(string)
		fields[k] = v
	}
	holds, err := parseHolds(fields)
	if err != nil {
		return nil, false, err
	}
	return holds, true, nil
}

// TotalHeld implements ReservationStore.
func (s RedisReservationStore) TotalHeld(ctx context.Context, tenantID string, productID uuid.UUID, excludeCart string) (float64, error) {
	if s.Client == nil {
		return 0, errors.New("stock: redis client not configured")
	}
	members, err := s.Client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, err
	}
	field := productID.String()
	var total float64
	for _, member := range members {
		memberTenant, cartID, ok := splitMember(member)
		if !ok || memberTenant != tenantID {
			continue
		}
		if excludeCart != "" && cartID == excludeCart {
			continue
		}
		val, err := s.Client.HGet(ctx, s.cartKey(tenantID, cartID), field).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return 0, err
		}
		units, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("stock: corrupt hold value %q: %w", val, err)
		}
		total += units
	}
	return total, nil
}

// Sweep implements ReservationStore.
func (s RedisReservationStore) Sweep(ctx context.Context) (int, error) {
	if s.Client == nil {
		return 0, errors.New("stock: redis client not configured")
	}
	members, err := s.Client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, member := range members {
		tenantID, cartID, ok := splitMember(member)
		if !ok {
			_ = s.Client.SRem(ctx, s.indexKey(), member).Err()
			removed++
			continue
		}
		exists, err := s.Client.Exists(ctx, s.cartKey(tenantID, cartID)).Result()
		if err != nil {
			return removed, err
		}
		if exists == 0 {
			if err := s.Client.SRem(ctx, s.indexKey(), member).Err(); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func splitMember(member string) (tenantID, cartID string, ok bool) {
	idx := strings.IndexByte(member, '|')
	if idx <= 0 || idx == len(member)-1 {
		return "", "", false
	}
	return member[:idx], member[idx+1:], true
}

func parseHolds(fields map[string]string) (map[uuid.UUID]float64, error) {
	holds := make(map[uuid.UUID]float64, len(fields))
	for k, v := range fields {
		id, err := uuid.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("stock: corrupt hold key %q: %w", k, err)
		}
		units, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("stock: corrupt hold value %q: %w", v, err)
		}
		if units > 0 {
			holds[id] = units
		}
	}
	return holds, nil
}
