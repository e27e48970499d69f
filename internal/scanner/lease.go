package scanner

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/fairyhunter13/semantic-orchestrator/internal/domain"
)

// leaser gates full-scan execution to one replica at a time per kind via a
// Redis SET NX PX lease. Kafka's consumer-group rebalancing already gives
// at-most-one-partition-owner semantics, but a scan trigger fans out to
// every replica subscribed to the trigger topic (so each can react to a
// targeted trigger for a transform it might own locally); the lease is what
// actually prevents every replica from running the same full scan at once,
// since Kafka — unlike NATS JetStream — has no "max_ack_pending=1"
// equivalent to serialize delivery across a topic's consumers.
type leaser struct {
	rdb *redis.Client
	ttl time.Duration
}

func newLeaser(rdb *redis.Client, ttl time.Duration) *leaser {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &leaser{rdb: rdb, ttl: ttl}
}

// acquire attempts to take the named lease, returning a token to release it
// with and whether acquisition succeeded. A nil rdb always "succeeds" (fail
// open to single-replica/dev behavior rather than stall scanning entirely).
func (l *leaser) acquire(ctx domain.Context, name string) (token string, ok bool, err error) {
	if l.rdb == nil {
		return "", true, nil
	}
	token = newLeaseToken(name)
	ok, err = l.rdb.SetNX(ctx, "scanner:lease:"+name, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return token, ok, nil
}

// renew extends a held lease's TTL; callers run this periodically for
// scans that may outlast the lease TTL.
func (l *leaser) renew(ctx domain.Context, name string) {
	if l.rdb == nil {
		return
	}
	l.rdb.Expire(ctx, "scanner:lease:"+name, l.ttl)
}

// release drops the lease only if token still matches the holder's token,
// so a lease that already expired and was re-acquired by another replica is
// never stolen back.
func (l *leaser) release(ctx domain.Context, name, token string) {
	if l.rdb == nil {
		return
	}
	const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`
	l.rdb.Eval(ctx, releaseScript, []string{"scanner:lease:" + name}, token)
}

var leaseSecret = []byte("semantic-orchestrator-scanner-lease")

func newLeaseToken(name string) string {
	h, err := blake2b.New256(leaseSecret)
	if err != nil {
		return uuid.NewString()
	}
	h.Write([]byte(name))
	h.Write([]byte(uuid.NewString()))
	return hex.EncodeToString(h.Sum(nil))
}
