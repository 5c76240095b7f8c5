package account

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

// OTPStore keeps the latest issued one-time code per identifier until it is
// used or expires.
type OTPStore interface {
	// Save records code for identifier, owned by profileID, for ttl. It
	// replaces any earlier code for identifier.
	Save(ctx context.Context, identifier, code, profileID string, ttl time.Duration) error
	// Consume returns the owner of a live code and deletes it. A missing,
	// wrong or expired code is NotFound.
	Consume(ctx context.Context, identifier, code string) (string, error)
}

// consumeScript deletes the key only when the stored code matches ARGV[1].
// Values are "<code>:<profile id>".
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return false end
local sep = string.find(v, ':', 1, true)
if not sep or string.sub(v, 1, sep - 1) ~= ARGV[1] then return false end
redis.call('DEL', KEYS[1])
return string.sub(v, sep + 1)
`)

// RedisOTPStore keeps one expiring key per identifier.
type RedisOTPStore struct {
	client *redis.Client
	prefix string
}

// NewRedisOTPStore returns a store writing keys under prefix.
func NewRedisOTPStore(client *redis.Client, prefix string) *RedisOTPStore {
	if prefix == "" {
		prefix = "campus:otp:"
	}
	return &RedisOTPStore{client: client, prefix: prefix}
}

// Save implements OTPStore.
func (s *RedisOTPStore) Save(ctx context.Context, identifier, code, profileID string, ttl time.Duration) error {
	err := s.client.Set(ctx, s.prefix+identifier, code+":"+profileID, ttl).Err()
	return errors.Annotate(err, "save otp")
}

// Consume implements OTPStore.
func (s *RedisOTPStore) Consume(ctx context.Context, identifier, code string) (string, error) {
	owner, err := consumeScript.Run(ctx, s.client, []string{s.prefix + identifier}, code).Text()
	if errors.Is(err, redis.Nil) {
		return "", errors.NotFoundf("otp")
	}
	if err != nil {
		return "", errors.Annotate(err, "consume otp")
	}
	return owner, nil
}

type memoryOTP struct {
	code    string
	owner   string
	expires time.Time
}

// MemoryOTPStore is an in-process OTPStore for offline mode and tests.
type MemoryOTPStore struct {
	clock clock.Clock
	mu    sync.Mutex
	codes map[string]memoryOTP
}

// NewMemoryOTPStore returns an empty store.
func NewMemoryOTPStore(clk clock.Clock) *MemoryOTPStore {
	if clk == nil {
		clk = clock.WallClock
	}
	return &MemoryOTPStore{clock: clk, codes: map[string]memoryOTP{}}
}

// Save implements OTPStore.
func (s *MemoryOTPStore) Save(_ context.Context, identifier, code, profileID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[identifier] = memoryOTP{code: code, owner: profileID, expires: s.clock.Now().Add(ttl)}
	return nil
}

// Consume implements OTPStore.
func (s *MemoryOTPStore) Consume(_ context.Context, identifier, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.codes[identifier]
	if !ok {
		return "", errors.NotFoundf("otp")
	}
	if !s.clock.Now().Before(entry.expires) {
		delete(s.codes, identifier)
		return "", errors.NotFoundf("otp")
	}
	if entry.code != code {
		return "", errors.NotFoundf("otp")
	}
	delete(s.codes, identifier)
	return entry.owner, nil
}
