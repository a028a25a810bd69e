// Package kvtest holds behaviour tests shared by every kv.Store implementation.
package kvtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/backstop/pkg/kv"
)

// Run exercises a fresh store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) kv.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		v, ok, err := s.Get(ctx, "usage:none")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("put get replace", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "usage:a", []byte("one")))
		require.NoError(t, s.Put(ctx, "usage:a", []byte("two")))

		v, ok, err := s.Get(ctx, "usage:a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "two", string(v))
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "credential:a", []byte("x")))
		require.NoError(t, s.Delete(ctx, "credential:a"))
		require.NoError(t, s.Delete(ctx, "credential:a"))

		_, ok, err := s.Get(ctx, "credential:a")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("prefix operations leave other keys alone", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "credential:a", []byte("1")))
		require.NoError(t, s.Put(ctx, "credential:b", []byte("2")))
		require.NoError(t, s.Put(ctx, "usage:a", []byte("3")))
		require.NoError(t, s.Put(ctx, "app:theme", []byte("dark")))

		keys, err := s.Keys(ctx, kv.CredentialPrefix)
		require.NoError(t, err)
		assert.Equal(t, []string{"credential:a", "credential:b"}, keys)

		n, err := s.DeletePrefix(ctx, kv.CredentialPrefix)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = s.DeletePrefix(ctx, kv.CredentialPrefix)
		require.NoError(t, err)
		assert.Zero(t, n)

		for _, key := range []string{"usage:a", "app:theme"} {
			_, ok, err := s.Get(ctx, key)
			require.NoError(t, err)
			assert.True(t, ok, key)
		}
	})

	t.Run("prefix with like wildcards is literal", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "usage:a_b", []byte("1")))
		require.NoError(t, s.Put(ctx, "usage:axb", []byte("2")))

		keys, err := s.Keys(ctx, "usage:a_")
		require.NoError(t, err)
		assert.Equal(t, []string{"usage:a_b"}, keys)
	})
}
