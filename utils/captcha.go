package utils

import (
	"time"

	"github.com/mojocn/base64Captcha"
)

const captchaTTL = 10 * time.Minute

// redisCaptchaStore implements base64Captcha.Store backed by Redis so that
// any instance behind the load balancer can verify an answer.
type redisCaptchaStore struct {
	ttl time.Duration
}

func (s *redisCaptchaStore) key(id string) string {
	return "captcha:" + id
}

// Set stores the captcha value with TTL.
func (s *redisCaptchaStore) Set(id string, value string) error {
	return PutToken(s.key(id), value, s.ttl)
}

// Get retrieves the value and optionally clears it.
func (s *redisCaptchaStore) Get(id string, clear bool) string {
	if clear {
		v, _, err := TakeToken(s.key(id))
		if err != nil {
			return ""
		}
		return v
	}
	ctx, cancel := redisCtx()
	defer cancel()
	v, err := GetRedis().Get(ctx, s.key(id)).Result()
	if err != nil {
		return ""
	}
	return v
}

// Verify compares answer and optionally clears it.
func (s *redisCaptchaStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}

var captchaStore base64Captcha.Store = &redisCaptchaStore{ttl: captchaTTL}

// GenerateCaptcha creates a digit captcha and returns (id, dataURI) for the frontend to display.
func GenerateCaptcha() (string, string, error) {
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	c := base64Captcha.NewCaptcha(driver, captchaStore)
	id, b64, _, err := c.Generate()
	return id, b64, err
}

// VerifyCaptcha verifies the provided answer; it consumes the captcha either way.
func VerifyCaptcha(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return captchaStore.Verify(id, answer, true)
}
