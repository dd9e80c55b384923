package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Spy-KakaoTalk-bot/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultRedisKey = "spy:points"
	maxRedisRounds  = 1000
)

// Redis keeps points in a single HASH (membership → points) and archived
// rounds as JSON in a capped list next to it.
type Redis struct {
	rdb *redis.Client
	key string
	log *zap.Logger
}

// NewRedis connects to redisURL (redis:// or rediss://) and pings it.
func NewRedis(ctx context.Context, redisURL, key string, log *zap.Logger) (*Redis, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required for the redis ledger")
	}
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(rdb, key, log), nil
}

func NewRedisWithClient(rdb *redis.Client, key string, log *zap.Logger) *Redis {
	if strings.TrimSpace(key) == "" {
		key = DefaultRedisKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{rdb: rdb, key: strings.TrimSpace(key), log: log}
}

func (r *Redis) roundsKey() string { return r.key + ":rounds" }

func (r *Redis) Load(ctx context.Context) map[string]int {
	raw, err := r.rdb.HGetAll(ctx, r.key).Result()
	out := make(map[string]int, len(raw))
	if err != nil {
		r.log.Error("ledger_redis_load_error", zap.String("key", r.key), zap.Error(err))
		return out
	}
	for k, v := range raw {
		out[k] = parsePoints(v)
	}
	return out
}

func (r *Redis) Points(ctx context.Context, membership string) int {
	v, err := r.rdb.HGet(ctx, r.key, strings.TrimSpace(membership)).Result()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		r.log.Error("ledger_redis_get_error", zap.String("key", r.key), zap.String("membership", membership), zap.Error(err))
		return 0
	}
	return parsePoints(v)
}

func (r *Redis) Upsert(ctx context.Context, membership string, points int) error {
	membership = strings.TrimSpace(membership)
	if err := validMembership(membership); err != nil {
		return err
	}
	return r.rdb.HSet(ctx, r.key, membership, points).Err()
}

// SaveRound pushes r onto the capped rounds list, newest first.
func (r *Redis) SaveRound(ctx context.Context, res domain.RoundResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, r.roundsKey(), raw)
	pipe.LTrim(ctx, r.roundsKey(), 0, maxRedisRounds-1)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentRounds scans the capped rounds list, newest first.
func (r *Redis) RecentRounds(ctx context.Context, room string, limit int) ([]domain.RoundResult, error) {
	items, err := r.rdb.LRange(ctx, r.roundsKey(), 0, maxRedisRounds-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.RoundResult, 0, len(items))
	for _, it := range items {
		var res domain.RoundResult
		if err := json.Unmarshal([]byte(it), &res); err != nil {
			r.log.Warn("ledger_redis_round_decode_error", zap.Error(err))
			continue
		}
		if room != "" && res.Room != room {
			continue
		}
		out = append(out, res)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
