package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	before, err := ts.GetSchemaVersion(ctx)
	require.NoError(t, err)

	require.NoError(t, ts.Migrate(ctx))

	after, err := ts.GetSchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	initialized, err := ts.GetDriver().IsInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestStorePing(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	require.NoError(t, ts.Ping(ctx))
}
