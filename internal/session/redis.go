package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shiftscan/internal/model"
)

const maxTxAttempts = 5

// RedisStore keeps each session as a JSON value with a TTL so several API
// replicas can share sessions. Updates use WATCH/MULTI and retry when another
// writer touched the key first.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "shiftscan:session:"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck,gosec
		return nil, eris.Wrapf(err, "session: connect redis at %s", addr)
	}

	zap.L().Info("session: connected to redis", zap.String("addr", addr))
	return rdb, nil
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

// Create implements Store.
func (r *RedisStore) Create(ctx context.Context, s *model.ProcessingSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return eris.Wrap(err, "session: marshal")
	}
	ok, err := r.rdb.SetNX(ctx, r.key(s.ID), data, r.ttl).Result()
	if err != nil {
		return eris.Wrap(err, "session: redis create")
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, id string) (*model.ProcessingSession, error) {
	data, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "session: redis get")
	}
	return decode(data)
}

// Update implements Store.
func (r *RedisStore) Update(ctx context.Context, id string, fn func(s *model.ProcessingSession) error) (*model.ProcessingSession, error) {
	key := r.key(id)
	var out *model.ProcessingSession

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return eris.Wrap(err, "session: redis get")
		}
		s, err := decode(data)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		next, err := json.Marshal(s)
		if err != nil {
			return eris.Wrap(err, "session: marshal")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		out = s
		return nil
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, eris.Errorf("session: update %s: too much contention", id)
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := r.rdb.Del(ctx, r.key(id)).Result()
	if err != nil {
		return eris.Wrap(err, "session: redis delete")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

func decode(data []byte) (*model.ProcessingSession, error) {
	var s model.ProcessingSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "session: unmarshal")
	}
	return &s, nil
}
