// Package storetest holds the behaviour every store.Store must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/walletvisor/internal/store"
)

// Run exercises st against the store contract. st must be empty.
func Run(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.EnsureSchema(ctx))
	require.NoError(t, st.EnsureSchema(ctx), "EnsureSchema must be idempotent")
	require.NoError(t, st.Ping(ctx))

	t.Run("missing loads default", func(t *testing.T) {
		rec, ok, err := st.Load(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, "nobody", rec.Username)
		assert.False(t, rec.Created)
		assert.Zero(t, rec.Port)
		assert.Empty(t, rec.Container)
		assert.True(t, rec.StartedAt.IsZero())
	})

	t.Run("save and load", func(t *testing.T) {
		started := time.Now().Add(-5 * time.Minute).Truncate(time.Millisecond)
		in := store.Record{
			Username:  "alice",
			Password:  "0123456789abcdef",
			Created:   true,
			Connected: true,
			Port:      40001,
			Container: "0123456789ab",
			StartedAt: started,
		}
		require.NoError(t, st.Save(ctx, in))

		got, ok, err := st.Load(ctx, "alice")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, in.Password, got.Password)
		assert.True(t, got.Created)
		assert.True(t, got.Connected)
		assert.Equal(t, 40001, got.Port)
		assert.Equal(t, "0123456789ab", got.Container)
		assert.True(t, got.StartedAt.Equal(started), "started %v != %v", got.StartedAt, started)
		assert.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("overwrite clears", func(t *testing.T) {
		rec, _, err := st.Load(ctx, "alice")
		require.NoError(t, err)
		rec.ClearConnection()
		require.NoError(t, st.Save(ctx, rec))

		got, ok, err := st.Load(ctx, "alice")
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, got.Connected)
		assert.Zero(t, got.Port)
		assert.Empty(t, got.Container)
		assert.True(t, got.StartedAt.IsZero())
		assert.True(t, got.Created, "credentials survive a clear")
	})

	t.Run("invalid rejected", func(t *testing.T) {
		err := st.Save(ctx, store.Record{Username: "bob", Connected: true})
		assert.True(t, errors.Is(err, store.ErrInvalidRecord), "got %v", err)
		_, ok, err := st.Load(ctx, "bob")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list sorted", func(t *testing.T) {
		require.NoError(t, st.Save(ctx, store.Record{Username: "carol"}))
		require.NoError(t, st.Save(ctx, store.Record{Username: "bob.b"}))
		users, err := st.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob.b", "carol"}, users)
	})
}
