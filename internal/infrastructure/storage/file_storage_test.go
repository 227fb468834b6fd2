package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalFileStorage_RoundTrip(t *testing.T) {
	base := t.TempDir()
	s := NewLocalFileStorage(base, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "requests/r1/ordre_mutation.pdf", []byte("v1")))
	require.NoError(t, s.Save(ctx, "requests/r1/ordre_mutation.pdf", []byte("v2")))

	assert.True(t, s.Exists(ctx, "requests/r1/ordre_mutation.pdf"))
	content, err := s.Read(ctx, "requests/r1/ordre_mutation.pdf")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(content))

	entries, err := os.ReadDir(filepath.Join(base, "requests", "r1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, s.Delete(ctx, "requests/r1/ordre_mutation.pdf"))
	require.NoError(t, s.Delete(ctx, "requests/r1/ordre_mutation.pdf"))
	assert.False(t, s.Exists(ctx, "requests/r1/ordre_mutation.pdf"))
}

func TestLocalFileStorage_RejectsEscapes(t *testing.T) {
	s := NewLocalFileStorage(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	for _, p := range []string{"../outside.pdf", "a/../../outside.pdf", ""} {
		assert.Error(t, s.Save(ctx, p, []byte("x")), p)
		assert.False(t, s.Exists(ctx, p), p)
	}
}
