package providers

import (
	"errors"
	"fmt"

	"github.com/gookit/validate"

	"wsd/internal/structures"
)

type CnfValidator struct {
	conf *structures.Config
}

func NewCnfValidator(conf *structures.Config) *CnfValidator {
	return &CnfValidator{conf: conf}
}

func (c *CnfValidator) Validate() error {
	v := validate.Struct(c.conf)
	if !v.Validate() {
		return v.Errors
	}

	if c.conf.RateLimit.HitsPerInterval > c.conf.RateLimit.MaxHits {
		return fmt.Errorf("rateLimit.hitsPerInterval (%d) exceeds rateLimit.maxHits (%d)",
			c.conf.RateLimit.HitsPerInterval, c.conf.RateLimit.MaxHits)
	}

	if c.conf.Identity.Type == "redis" && c.conf.Identity.Redis.Addr == "" {
		return errors.New("identity.redis.addr is required when identity.type is redis")
	}

	if c.conf.Cache.Enabled && c.conf.Cache.Size <= 0 {
		return errors.New("cache.size must be positive when the cache is enabled")
	}

	return nil
}
