package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/flcoord/pkg/storage"
	"github.com/absmach/flcoord/pkg/storage/sqlite"
	"github.com/absmach/flcoord/pkg/storage/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *sqlite.Database

func TestMain(m *testing.M) {
	dbPath := filepath.Join(os.TempDir(), "test_"+uuid.NewString()+".db")

	var err error
	testDB, err = sqlite.NewDatabase(dbPath)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	testDB.Close()
	os.Remove(dbPath)

	os.Exit(code)
}

func TestSQLiteRepositories(t *testing.T) {
	testutil.RunRepositoryTests(t, &storage.Repositories{
		Clients:  sqlite.NewClientRepository(testDB),
		Sessions: sqlite.NewSessionRepository(testDB),
		Metrics:  sqlite.NewMetricsRepository(testDB),
		Models:   sqlite.NewModelRepository(testDB),
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	assert.NoError(t, testDB.Migrate())
	assert.NoError(t, testDB.Migrate())
}

func TestSQLiteFactory(t *testing.T) {
	repos, err := storage.NewRepositories(storage.Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "factory.db"),
	})
	require.NoError(t, err)
	require.NotNil(t, repos.Closer)
	require.NoError(t, repos.Closer.Close())
}
