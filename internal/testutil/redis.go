// Package testutil holds helpers shared by package tests.
package testutil

import (
	"io"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultTestRedisAddr = "localhost:6379"

// GetTestRedisOptions points at REDIS_TEST_ADDR, or localhost, using DB 1
// so tests never touch the default database
func GetTestRedisOptions() *redis.Options {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = defaultTestRedisAddr
	}
	return &redis.Options{
		Addr: addr,
		DB:   1,
	}
}

// GetTestRedisClient returns a client for GetTestRedisOptions. It does not
// connect until first use.
func GetTestRedisClient() *redis.Client {
	return redis.NewClient(GetTestRedisOptions())
}

// SetupMiniRedis starts an in-process Redis and a client for it. Both are
// closed when the test finishes.
func SetupMiniRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return s, client
}

// QuietLogger returns a logger that discards output
func QuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
