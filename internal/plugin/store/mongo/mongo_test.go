package mongo_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/chirino/student-memory-service/internal/config"
	"github.com/chirino/student-memory-service/internal/plugin/store/mongo"
	"github.com/chirino/student-memory-service/internal/plugin/store/storetest"
	registrymigrate "github.com/chirino/student-memory-service/internal/registry/migrate"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
	"github.com/chirino/student-memory-service/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestMongoFactStore(t *testing.T) {
	_ = mongo.ForceImport

	uri := testutil.StartMongo(t)

	n := 0
	storetest.Run(t, func(t *testing.T) registrystore.FactStore {
		n++
		cfg := config.DefaultConfig()
		cfg.DatastoreType = "mongo"
		cfg.DBURL = uri
		cfg.MongoDatabase = fmt.Sprintf("student_memory_%d", n)
		ctx := config.WithContext(context.Background(), &cfg)

		require.NoError(t, registrymigrate.RunAll(ctx))
		loader, err := registrystore.Select("mongo")
		require.NoError(t, err)
		s, err := loader(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
