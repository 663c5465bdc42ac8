package session

import (
	"testing"
	"time"

	"github.com/MrEthical07/authstatus/jwt"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	return NewStore(rdb, "test", time.Hour), mr
}

func newTestTokens(t *testing.T) *jwt.Manager {
	t.Helper()

	m, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("session-test-secret-0123456789abcdef"),
		Issuer:        "authstatus-test",
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	return m
}
