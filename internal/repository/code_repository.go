package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeRepo tracks consumed authorization codes in Redis so a code can be
// exchanged exactly once within its lifetime.  Entries expire together with
// the code itself, so the set stays small.
type CodeRepo struct{ RDB *redis.Client }

func NewCodeRepo(rdb *redis.Client) *CodeRepo { return &CodeRepo{RDB: rdb} }

// Consume marks the code id as used and reports whether this call was the
// first.  With no Redis client configured the check degrades to allow:
// validation then rests on the code's one-minute expiry alone.
func (r *CodeRepo) Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if r.RDB == nil {
		return true, nil
	}
	return r.RDB.SetNX(ctx, "authcode:"+jti, 1, ttl).Result()
}
