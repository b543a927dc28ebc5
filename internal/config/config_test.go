package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 2000, cfg.ContextBudget)
	require.Zero(t, cfg.MaxActiveFacts)
}

func TestValidate_RejectsUnknownDatastore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatastoreType = "supabase"
	require.ErrorContains(t, cfg.Validate(), "unknown datastore")
}

func TestValidate_ContextBudget(t *testing.T) {
	cfg := DefaultConfig()

	cfg.ContextBudget = 0
	require.NoError(t, cfg.Validate())

	cfg.ContextBudget = MinContextBudget - 1
	require.Error(t, cfg.Validate())

	cfg.ContextBudget = -5
	require.Error(t, cfg.Validate())
}

func TestValidate_PruneSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxActiveFacts = 50
	cfg.PruneBatchSize = 0
	require.Error(t, cfg.Validate())

	cfg.PruneBatchSize = 10
	require.NoError(t, cfg.Validate())
}

func TestContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
	require.Nil(t, FromContext(context.Background()))
}
