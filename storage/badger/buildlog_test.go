package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/catmat/core"
)

func TestBuildLog(t *testing.T) {
	ctx := context.Background()
	_, log, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	last, err := log.LastBuild(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	record := &core.BuildRecord{Fingerprint: "fp1", Count: 3, Dimension: 8, EmbedTime: time.Second, IndexTime: 2 * time.Second}
	require.NoError(t, log.RecordBuild(ctx, record))
	assert.False(t, record.BuiltAt.IsZero())

	last, err = log.LastBuild(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, core.Fingerprint("fp1"), last.Fingerprint)
	assert.Equal(t, 2*time.Second, last.IndexTime)
}
