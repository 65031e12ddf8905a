//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"discard/internal/nullifier/models"
	"discard/internal/nullifier/store"
	"discard/pkg/platform/sentinel"
	"discard/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = store.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestInsertFindAndReplay() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	r := newRecord("nf-redis", now, time.Hour)
	r.Context = map[string]string{"k": "v"}
	s.Require().NoError(s.store.Insert(ctx, r))
	s.ErrorIs(s.store.Insert(ctx, newRecord("nf-redis", now, time.Hour)), sentinel.ErrAlreadyUsed)

	found, err := s.store.Find(ctx, "nf-redis")
	s.Require().NoError(err)
	s.Equal(models.StatusActive, found.Status)
	s.Equal("v", found.Context["k"])

	batch, err := s.store.ExistsBatch(ctx, []string{"nf-redis", "other"})
	s.Require().NoError(err)
	s.True(batch["nf-redis"])
	s.False(batch["other"])
}

func (s *RedisStoreSuite) TestSweepsKeepConsumedNullifiers() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	s.Require().NoError(s.store.Insert(ctx, newRecord("short", now, time.Minute)))
	s.Require().NoError(s.store.Insert(ctx, newRecord("long", now, 48*time.Hour)))

	n, err := s.store.MarkExpired(ctx, now.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Equal(1, n)

	found, err := s.store.Find(ctx, "short")
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, found.Status)
	s.ErrorIs(s.store.Insert(ctx, newRecord("short", now, time.Hour)), sentinel.ErrAlreadyUsed)

	n, err = s.store.MarkExpired(ctx, now.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Equal(0, n)

	n, err = s.store.DeleteExpired(ctx, now.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(1, n)

	exists, err := s.store.Exists(ctx, "short")
	s.Require().NoError(err)
	s.False(exists)
	exists, err = s.store.Exists(ctx, "long")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *RedisStoreSuite) TestConcurrentInsert() {
	ctx := context.Background()
	const goroutines = 50

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Insert(ctx, newRecord("contended", time.Now(), time.Hour))
			if err == nil {
				successes.Add(1)
			} else if errors.Is(err, sentinel.ErrAlreadyUsed) {
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}
