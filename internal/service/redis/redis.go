package redis

import (
	"context"
	"fmt"
	"strconv"

	"e2e_relay/internal/apperr"
	"e2e_relay/internal/service"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type (
	RedisService struct {
		rdb *redis.Client
	}

	// Inbox keeps one hash per recipient, field = sender id, value = number
	// of messages stored while the recipient was away.
	Inbox struct {
		r *RedisService
	}
)

var _ service.InboxHints = (*Inbox)(nil)

func NewRedis(rdb *redis.Client) *RedisService {
	return &RedisService{
		rdb: rdb,
	}
}

// Connect dials addr and pings it once.
func Connect(ctx context.Context, addr, password string, db int) (*RedisService, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}
	return NewRedis(rdb), nil
}

// HIncrBy adds n to field and returns the new value.
func (r *RedisService) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	return r.rdb.HIncrBy(ctx, key, field, n).Result()
}

func (r *RedisService) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.rdb.HGetAll(ctx, key).Result()
}

func (r *RedisService) HDel(ctx context.Context, key string, fields ...string) error {
	return r.rdb.HDel(ctx, key, fields...).Err()
}

func (r *RedisService) Del(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

func (r *RedisService) Close() error {
	return r.rdb.Close()
}

func NewInbox(r *RedisService) *Inbox {
	return &Inbox{r: r}
}

func inboxKey(recipient uuid.UUID) string {
	return fmt.Sprintf("unread:%s", recipient)
}

func (i *Inbox) Bump(ctx context.Context, recipient, sender uuid.UUID) error {
	_, err := i.r.HIncrBy(ctx, inboxKey(recipient), sender.String(), 1)
	return apperr.Infrastructure("bump inbox hint", err)
}

func (i *Inbox) Drop(ctx context.Context, recipient, sender uuid.UUID) error {
	key, field := inboxKey(recipient), sender.String()
	n, err := i.r.HIncrBy(ctx, key, field, -1)
	if err != nil {
		return apperr.Infrastructure("drop inbox hint", err)
	}
	if n <= 0 {
		return apperr.Infrastructure("drop inbox hint", i.r.HDel(ctx, key, field))
	}
	return nil
}

func (i *Inbox) Clear(ctx context.Context, recipient, sender uuid.UUID) error {
	err := i.r.HDel(ctx, inboxKey(recipient), sender.String())
	return apperr.Infrastructure("clear inbox hint", err)
}

func (i *Inbox) Pending(ctx context.Context, recipient uuid.UUID) (map[uuid.UUID]int64, error) {
	vals, err := i.r.HGetAll(ctx, inboxKey(recipient))
	if err != nil {
		return nil, apperr.Infrastructure("read inbox hints", err)
	}

	res := make(map[uuid.UUID]int64, len(vals))
	for field, v := range vals {
		sender, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		res[sender] = n
	}
	return res, nil
}
