// Package store persists session snapshots as opaque blobs keyed by the
// browsing context they belong to.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	TypeMemory = "memory"
	TypeFile   = "file"
	TypeSQLite = "sqlite"
	TypeRedis  = "redis"
)

// ErrNotFound is returned by Load if no snapshot is stored under a key.
var ErrNotFound = errors.New("snapshot not found")

// A Store saves, loads and deletes snapshots.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

type StoreConfig struct {
	Type          string        `yaml:"type" env:"STEPREC_STORE_TYPE" env-default:"file"`
	Dir           string        `yaml:"dir" env:"STEPREC_STORE_DIR" env-default:".steprec"`
	Path          string        `yaml:"path" env:"STEPREC_STORE_PATH" env-default:"steprec.db"`
	RedisAddr     string        `yaml:"redis_addr" env:"STEPREC_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string        `yaml:"redis_password" env:"STEPREC_REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"STEPREC_REDIS_DB"`
	Prefix        string        `yaml:"prefix" env-default:"steprec:snapshot"`
	TTL           time.Duration `yaml:"ttl" env-default:"1h"`
}

// NewStore returns the store matching the configured type.
func NewStore(ctx context.Context, sc *StoreConfig) (Store, error) {
	switch sc.Type {
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeFile, "":
		return NewFileStore(sc.Dir)
	case TypeSQLite:
		return NewSQLiteStore(ctx, sc.Path)
	case TypeRedis:
		return NewRedisStoreFromConfig(sc), nil
	default:
		return nil, fmt.Errorf("store type %s not implemented", sc.Type)
	}
}

func validateKey(key string) error {
	if key == "" {
		return errors.New("key is required")
	}
	return nil
}
