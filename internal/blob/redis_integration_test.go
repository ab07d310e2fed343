//go:build integration

package blob_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"landdocs/internal/blob"
	"landdocs/pkg/platform/sentinel"
	"landdocs/pkg/testutil/containers"
)

type RedisBlobSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *blob.Redis
}

func TestRedisBlobSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBlobSuite))
}

func (s *RedisBlobSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = blob.NewRedis(s.redis.Client, "test:blob:")
}

func (s *RedisBlobSuite) SetupTest() {
	s.Require().NoError(s.redis.Reset(context.Background()))
}

func (s *RedisBlobSuite) TestLifecycle() {
	ctx := context.Background()
	ref, err := s.store.Put(ctx, []byte("financial certificate"))
	s.Require().NoError(err)

	ok, err := s.store.Exists(ctx, ref)
	s.Require().NoError(err)
	s.True(ok)

	got, err := s.store.Get(ctx, ref)
	s.Require().NoError(err)
	s.Equal("financial certificate", string(got))

	s.Require().NoError(s.store.Delete(ctx, ref))
	_, err = s.store.Get(ctx, ref)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisBlobSuite) TestFlushLooksLikeLostArtifact() {
	ctx := context.Background()
	ref, err := s.store.Put(ctx, []byte("x"))
	s.Require().NoError(err)
	s.Require().NoError(s.redis.Reset(ctx))

	ok, err := s.store.Exists(ctx, ref)
	s.Require().NoError(err)
	s.False(ok)
}
