package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MrEthical07/authstatus/jwt"
	"github.com/MrEthical07/authstatus/internal/server"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// openRedis connects to addr, falling back to REDIS_ADDR and then to an
// embedded miniredis when allowEmbedded is set.
func openRedis(addr string, allowEmbedded bool, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	if addr == "" {
		if !allowEmbedded {
			return nil, nil, fmt.Errorf("no redis address: set --redis-addr or REDIS_ADDR")
		}
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		logger.Info("using embedded miniredis", "addr", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	logger.Info("using redis", "addr", addr)
	return client, func() { _ = client.Close() }, nil
}

func newTokenManager(cfg server.Config) (*jwt.Manager, error) {
	return jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.TokenTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(cfg.JWTSecret),
		Issuer:        cfg.Issuer,
		Leeway:        5 * time.Second,
	})
}
