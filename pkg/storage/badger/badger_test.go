package badger_test

import (
	"testing"

	"github.com/absmach/flcoord/pkg/storage"
	"github.com/absmach/flcoord/pkg/storage/badger"
	"github.com/absmach/flcoord/pkg/storage/testutil"
	"github.com/stretchr/testify/require"
)

func TestBadgerRepositories(t *testing.T) {
	db, err := badger.NewDatabase(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	testutil.RunRepositoryTests(t, &storage.Repositories{
		Clients:  badger.NewClientRepository(db),
		Sessions: badger.NewSessionRepository(db),
		Metrics:  badger.NewMetricsRepository(db),
		Models:   badger.NewModelRepository(db),
	})
}

func TestBadgerFactory(t *testing.T) {
	repos, err := storage.NewRepositories(storage.Config{Type: "badger", BadgerPath: t.TempDir()})
	require.NoError(t, err)
	require.NotNil(t, repos.Closer)
	require.NoError(t, repos.Closer.Close())
}
