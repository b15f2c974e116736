package config

const stateStoreVar = "STATE_STORE"

const (
	StateStoreMemory = "memory"
	StateStoreRedis  = "redis"
)

type StoreConfig interface {
	GetStateStore() string
	GetRedisAddr() string
	GetRedisPassword() string
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetStateStore() string {
	return GetEnv(stateStoreVar, StateStoreMemory)
}

func (Store) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Store) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}
