//go:build integration

package options

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"otakudb/pkg/testutil/containers"
)

// =============================================================================
// Redis Options Store Integration Test Suite
// =============================================================================

type RedisStoreSuite struct {
	suite.Suite
	ctx   context.Context
	redis *containers.RedisContainer
	store *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestGetMissingKey() {
	_, ok, err := s.store.Get(s.ctx, KeyEmergencyShutdown)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisStoreSuite) TestSetGetRoundtrip() {
	s.Require().NoError(s.store.Set(s.ctx, KeyThrottleMax, "25"))

	value, ok, err := s.store.Get(s.ctx, KeyThrottleMax)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("25", value)

	s.Run("overwrite", func() {
		s.Require().NoError(s.store.Set(s.ctx, KeyThrottleMax, "5"))
		value, ok, err := s.store.Get(s.ctx, KeyThrottleMax)
		s.Require().NoError(err)
		s.True(ok)
		s.Equal("5", value)
	})
}

func (s *RedisStoreSuite) TestServiceOverRedis() {
	service := New(s.store)

	// Unset keys fall back to defaults.
	limit, err := service.Int(s.ctx, KeyThrottleMax)
	s.Require().NoError(err)
	s.Equal(10, limit)

	s.Require().NoError(service.Set(s.ctx, KeyEmergencyShutdown, "true"))
	shutdown, err := service.Bool(s.ctx, KeyEmergencyShutdown)
	s.Require().NoError(err)
	s.True(shutdown)
}
