package identity

import (
	"context"
	"fmt"
	"strings"

	"wsd/internal/providers"
	"wsd/internal/structures"
)

// Preference keys kept per identity.
const (
	KeyLocation = "location"
	KeyLatLong  = "latlong"
	KeyGreet    = "greet"
	KeyColors   = "colors"
)

const (
	On  = "ON"
	Off = "OFF"
)

// Store keeps per-identity preferences. Get reports ok=false for an unset key.
type Store interface {
	Get(ctx context.Context, identity, key string) (string, bool, error)
	Set(ctx context.Context, identity, key, value string) error
	Delete(ctx context.Context, identity, key string) error
}

func normalize(identity string) string {
	return strings.ToLower(identity)
}

// NewStore picks the backend named by identity.type.
func NewStore(conf *structures.Config, logger providers.Logger) (Store, func(), error) {
	switch conf.Identity.Type {
	case "", "memory":
		logger.Infof(providers.TypeApp, "Identity store: memory")
		return NewMemoryStore(), func() {}, nil
	case "redis":
		s, err := NewRedisStore(conf.Identity.Redis)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof(providers.TypeApp, "Identity store: redis at %s", conf.Identity.Redis.Addr)
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warnf(providers.TypeApp, "failed to close redis identity store: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown identity store type %q", conf.Identity.Type)
	}
}
