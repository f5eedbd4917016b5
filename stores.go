package annotit

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/poiesic/annotit/config"
	"github.com/poiesic/annotit/core"
	"github.com/poiesic/annotit/storage"
	badgerstore "github.com/poiesic/annotit/storage/badger"
	blevestore "github.com/poiesic/annotit/storage/bleve"
	redisstore "github.com/poiesic/annotit/storage/redis"
)

// OpenStore opens the store described by sc.
func OpenStore(ctx context.Context, sc config.StoreConfig, opts storage.Options) (storage.Store, error) {
	switch sc.Store {
	case "", "badger":
		return badgerstore.Open(sc.Path, sc.InMemory, opts)
	case "bleve":
		return blevestore.Open(sc.Path, sc.InMemory, opts)
	case "redis":
		return redisstore.Open(ctx, sc.Redis.Addr, sc.Redis.Password, sc.Redis.DB, sc.Redis.Prefix, opts)
	default:
		return nil, fmt.Errorf("%w: unknown store %q", core.ErrConfiguration, sc.Store)
	}
}

// SameStore reports whether a and b name the same persistent store, in
// which case it must be opened once.
func SameStore(a, b config.StoreConfig) bool {
	if a.Store != b.Store {
		return false
	}
	if a.Store == "redis" {
		return a.Redis.Addr == b.Redis.Addr && a.Redis.DB == b.Redis.DB && a.Redis.Prefix == b.Redis.Prefix
	}
	if a.InMemory || b.InMemory {
		return false
	}
	return filepath.Clean(a.Path) == filepath.Clean(b.Path)
}
