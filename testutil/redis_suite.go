//go:build test

package testutil

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	redisutil "github.com/oscarprdev/nft-market-sync/transport/redis"
)

// RedisTestSuite provides a shared miniredis instance for tests.
// Embed this in your test suite to get automatic Redis setup/teardown.
// FlushAll runs between tests for isolation; the real miniredis server
// replaces mocks so client behavior (TTLs, pub/sub) is exercised.
//
// Usage:
//
//	type MyTestSuite struct {
//	    testutil.RedisTestSuite
//	}
//
//	func (s *MyTestSuite) TestSomething() {
//	    err := s.RedisClient.Set(s.Ctx, "key", "value", 0).Err()
//	    s.Require().NoError(err)
//	}
//
//	func TestMyTestSuite(t *testing.T) {
//	    suite.Run(t, new(MyTestSuite))
//	}
type RedisTestSuite struct {
	suite.Suite

	// MiniRedis is the embedded miniredis instance.
	// Use this for direct miniredis operations (e.g., advancing TTLs).
	MiniRedis *miniredis.Miniredis

	// RedisClient is the Redis client connected to miniredis.
	RedisClient *redisutil.Client

	// Ctx is a background context for Redis operations.
	Ctx context.Context
}

// SetupSuite runs ONCE before all tests in the suite.
// Creates a single shared miniredis instance to prevent CPU exhaustion.
func (s *RedisTestSuite) SetupSuite() {
	mr, err := miniredis.Run()
	s.Require().NoError(err, "failed to create miniredis")
	s.MiniRedis = mr

	s.Ctx = context.Background()

	redisURL := fmt.Sprintf("redis://%s", mr.Addr())
	client, err := redisutil.NewClient(s.Ctx, redisutil.ClientConfig{
		URL: redisURL,
	})
	s.Require().NoError(err, "failed to create Redis client")
	s.RedisClient = client
}

// SetupTest runs BEFORE each test.
// Flushes all data from miniredis to ensure test isolation.
func (s *RedisTestSuite) SetupTest() {
	s.MiniRedis.FlushAll()
}

// TearDownSuite runs ONCE after all tests complete.
func (s *RedisTestSuite) TearDownSuite() {
	if s.MiniRedis != nil {
		s.MiniRedis.Close()
	}
	if s.RedisClient != nil {
		s.RedisClient.Close()
	}
}

// Helper Methods

// RequireKeyExists asserts that a key exists in Redis.
func (s *RedisTestSuite) RequireKeyExists(key string) {
	exists, err := s.RedisClient.Exists(s.Ctx, key).Result()
	s.Require().NoError(err, "failed to check key existence")
	s.Require().Equal(int64(1), exists, "key %q should exist", key)
}

// RequireKeyNotExists asserts that a key does NOT exist in Redis.
func (s *RedisTestSuite) RequireKeyNotExists(key string) {
	exists, err := s.RedisClient.Exists(s.Ctx, key).Result()
	s.Require().NoError(err, "failed to check key existence")
	s.Require().Equal(int64(0), exists, "key %q should not exist", key)
}

// GetKey is a helper to get a string value by key.
func (s *RedisTestSuite) GetKey(key string) string {
	val, err := s.RedisClient.Get(s.Ctx, key).Result()
	if err == redis.Nil {
		return ""
	}
	s.Require().NoError(err, "failed to get key %q", key)
	return val
}

// SetKey is a helper to set a string key-value pair.
func (s *RedisTestSuite) SetKey(key, value string) {
	err := s.RedisClient.Set(s.Ctx, key, value, 0).Err()
	s.Require().NoError(err, "failed to set key %q", key)
}

// Ping verifies the Redis connection is alive.
func (s *RedisTestSuite) Ping() {
	err := s.RedisClient.Ping(s.Ctx).Err()
	s.Require().NoError(err, "Redis ping failed")
}
