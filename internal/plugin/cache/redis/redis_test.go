package redis

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/student-memory-service/internal/model"
	"github.com/chirino/student-memory-service/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestRedisProfileCache(t *testing.T) {
	url := testutil.StartRedis(t)
	ctx := context.Background()

	c, err := LoadFromURL(ctx, url, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	got, err := c.Get(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, c.Set(ctx, model.StudentProfile{StudentID: "s1", AgeGroup: "11-13"}, 0))
	got, err = c.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "11-13", got.AgeGroup)

	require.NoError(t, c.Remove(ctx, "s1"))
	got, err = c.Get(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, got)
}
