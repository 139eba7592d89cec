package config

import "fmt"

const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
)

type StoreConfig interface {
	GetStoreBackend() string
	GetBoltPath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPrefix() string
}

type Store struct {
	Backend       string `envconfig:"STORE_BACKEND" default:"memory"`
	BoltPath      string `envconfig:"BOLT_PATH" default:"./data/auth.db"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"sa"`
}

var _ StoreConfig = Store{}

func (s Store) GetStoreBackend() string {
	return s.Backend
}

func (s Store) GetBoltPath() string {
	return s.BoltPath
}

func (s Store) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Store) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Store) GetRedisDB() int {
	return s.RedisDB
}

func (s Store) GetRedisPrefix() string {
	return s.RedisPrefix
}

func (s Store) validate() error {
	switch s.Backend {
	case StoreMemory, StoreRedis:
		return nil
	case StoreBolt:
		if s.BoltPath == "" {
			return fmt.Errorf("[config] BOLT_PATH is required for the bolt store")
		}
		return nil
	default:
		return fmt.Errorf("[config] unknown STORE_BACKEND %q", s.Backend)
	}
}
