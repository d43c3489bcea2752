package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes for the short-lived values kept in Redis.
const (
	OAuthStatePrefix    = "oauth:state:"
	PasswordResetPrefix = "pwreset:"
	BlacklistPrefix     = "jwt:blacklist:"
)

// consumeScript is the GET+DEL fallback for servers older than Redis 6.2.
const consumeScript = `local v=redis.call('GET', KEYS[1]); if v then redis.call('DEL', KEYS[1]); end; return v`

// RandomToken returns n random bytes hex encoded.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// PutToken stores value under key for ttl.
func PutToken(key, value string, ttl time.Duration) error {
	ctx, cancel := redisCtx()
	defer cancel()
	return GetRedis().Set(ctx, key, value, ttl).Err()
}

// TakeToken atomically reads and deletes key so that a token can be used once.
// ok is false when the key is missing or expired.
func TakeToken(key string) (value string, ok bool, err error) {
	rc := GetRedis()
	ctx, cancel := redisCtx()
	defer cancel()

	v, err := rc.GetDel(ctx, key).Result()
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, redis.Nil):
		return "", false, nil
	}

	res, evalErr := rc.Eval(ctx, consumeScript, []string{key}).Result()
	if evalErr != nil {
		if errors.Is(evalErr, redis.Nil) {
			return "", false, nil
		}
		return "", false, evalErr
	}
	s, _ := res.(string)
	return s, s != "", nil
}

// HasToken reports whether key exists.
func HasToken(key string) (bool, error) {
	ctx, cancel := redisCtx()
	defer cancel()
	n, err := GetRedis().Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// BlacklistToken revokes a token id until its natural expiration.
func BlacklistToken(jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 || jti == "" {
		return nil
	}
	return PutToken(BlacklistPrefix+jti, "1", ttl)
}

// IsTokenBlacklisted checks if a token was revoked before natural expiration.
func IsTokenBlacklisted(jti string) bool {
	ok, err := HasToken(BlacklistPrefix + jti)
	if err != nil {
		// fail open so a Redis outage does not log everybody out
		Sugar.Warnw("blacklist lookup failed", "error", err)
		return false
	}
	return ok
}
