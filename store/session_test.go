package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"sysrev/types"

	"github.com/stretchr/testify/require"
)

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)

	session := types.Session{
		ID:           "sess-1",
		IndexPath:    "indexes/sess-1_index.index",
		MetadataPath: "indexes/sess-1_index_metadata.json",
		Papers:       []string{"alpha"},
		CreatedAt:    time.Now(),
	}
	require.NoError(t, s.Put(ctx, session))

	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, session.IndexPath, got.IndexPath)
	require.Equal(t, []string{"alpha"}, got.Papers)

	// Updates replace the stored record.
	session.Papers = append(session.Papers, "beta")
	require.NoError(t, s.Put(ctx, session))
	got, err = s.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta"}, got.Papers)
}

func TestBoltSessionStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	s, err := NewBoltSessionStore(path)
	require.NoError(t, err)

	session := types.Session{
		ID:           "sess-2",
		IndexPath:    "indexes/sess-2_index.index",
		MetadataPath: "indexes/sess-2_index_metadata.json",
		Papers:       []string{"alpha", "beta"},
	}
	require.NoError(t, s.Put(ctx, session))

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, s.Close())

	// Sessions survive a restart.
	s, err = NewBoltSessionStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "sess-2")
	require.NoError(t, err)
	require.Equal(t, session.IndexPath, got.IndexPath)
	require.Equal(t, session.Papers, got.Papers)
}
