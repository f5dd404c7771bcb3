package storage_test

import (
	"context"
	"testing"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/storage"
	"github.com/absmach/flcoord/pkg/storage/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepositories(t *testing.T) {
	testutil.RunRepositoryTests(t, storage.NewMemoryRepositories())
}

func TestInMemoryStorage(t *testing.T) {
	ctx := context.Background()
	s := storage.NewInMemoryStorage()

	cases := []struct {
		desc string
		op   func() error
		err  error
	}{
		{
			desc: "create with empty key",
			op:   func() error { return s.Create(ctx, "", 1) },
			err:  pkgerrors.ErrEmptyKey,
		},
		{
			desc: "create new key",
			op:   func() error { return s.Create(ctx, "b:1", 1) },
		},
		{
			desc: "create duplicate key",
			op:   func() error { return s.Create(ctx, "b:1", 2) },
			err:  pkgerrors.ErrEntityExists,
		},
		{
			desc: "update missing key",
			op:   func() error { return s.Update(ctx, "b:2", 2) },
			err:  pkgerrors.ErrNotFound,
		},
		{
			desc: "put missing key",
			op:   func() error { return s.Put(ctx, "a:1", 3) },
		},
		{
			desc: "put existing key",
			op:   func() error { return s.Put(ctx, "b:0", 0) },
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.op()
			if tc.err == nil {
				assert.NoError(t, err)

				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}

	all, total, err := s.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), total)
	assert.Equal(t, []any{3, 0, 1}, all, "values are returned in key order")

	prefixed, total, err := s.ListPrefix(ctx, "b:", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
	assert.Equal(t, []any{1}, prefixed)

	empty, total, err := s.ListPrefix(ctx, "b:", 5, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
	assert.Empty(t, empty)
}

func TestNewRepositoriesUnsupported(t *testing.T) {
	_, err := storage.NewRepositories(storage.Config{Type: "cassandra"})
	assert.ErrorIs(t, err, storage.ErrUnsupportedType)
}
