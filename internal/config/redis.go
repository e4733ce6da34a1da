package config

// Redis carries the realtime broadcast channels, the distributed rate
// limiter and the dashboard cache. Connection parameters come from the
// environment. When the server cannot be reached at startup the
// constructor returns nil and callers fall back to in-process delivery
// with rate limiting and caching disabled.

import (
	"context"
	"crypto/tls"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection parameters of the Redis client.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
	// ChannelPrefix namespaces the realtime broadcast channels.
	ChannelPrefix string
}

// LoadRedisConfig reads:
//
//	REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//	REDIS_ADDR – host:port shorthand, used when host/port are not both set
//	REDIS_PASSWORD – optional password
//	REDIS_DB – database number (default 0)
//	REDIS_TLS – enable TLS when "true" or "1"
//	REDIS_CHANNEL_PREFIX – broadcast channel namespace (default "lostfound")
func LoadRedisConfig() RedisConfig {
	host := os.Getenv("REDIS_HOST")
	port := os.Getenv("REDIS_PORT")
	addr := os.Getenv("REDIS_ADDR")
	if host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	tlsEnv := os.Getenv("REDIS_TLS")
	return RedisConfig{
		Addr:          addr,
		Password:      os.Getenv("REDIS_PASSWORD"),
		DB:            envInt("REDIS_DB", 0),
		TLS:           strings.EqualFold(tlsEnv, "true") || tlsEnv == "1",
		ChannelPrefix: envStr("REDIS_CHANNEL_PREFIX", "lostfound"),
	}
}

// NewRedisClient instantiates a Redis client and pings it with a short
// timeout. The returned client is nil if a connection cannot be established.
func NewRedisClient(rc RedisConfig) *redis.Client {
	var tlsConf *tls.Config
	if rc.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      rc.Addr,
		Password:  rc.Password,
		DB:        rc.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
