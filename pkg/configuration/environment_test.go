package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_LoadsExistingFilesOnly(t *testing.T) {
	tmp := t.TempDir()
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "LENDOPS_TEST_ENV_LOAD=ok\n")

	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(tmp))

	_ = os.Unsetenv("LENDOPS_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("LENDOPS_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("LENDOPS_TEST_ENV_LOAD"))
}

func TestLoad_ParsesAssignmentsOptions(t *testing.T) {
	t.Setenv("LOG_PATH", filepath.Join(t.TempDir(), "app.log"))
	t.Setenv("ASSIGNMENTS_BACKEND", "SQLite")
	t.Setenv("ASSIGNMENTS_SQLITE_PATH", "/tmp/a.db")
	t.Setenv("ASSIGNMENTS_CACHE", "memory")
	t.Setenv("ASSIGNMENTS_CACHE_TTL", "30s")
	t.Setenv("LOG_LEVEL", "info")

	c := &Configuration{}
	require.NoError(t, c.load(nil))
	t.Cleanup(c.Unload)

	require.Equal(t, BackendSQLite, c.Assignments.Backend)
	require.Equal(t, CacheMemory, c.Assignments.Cache)
	require.Equal(t, 30*time.Second, c.Assignments.CacheTTL)
	require.True(t, c.Assignments.SyncCurrentOwner)
	require.Equal(t, 500, c.Assignments.MaxBatchSize)
	require.Equal(t, logrus.InfoLevel, c.LogrusLogLevel())
	require.NotNil(t, c.Logger())
	require.Contains(t, c.Database.Opts, "dbname=lendops")
}

func TestAssignmentsOptions_Validate(t *testing.T) {
	valid := AssignmentsOptions{Backend: "postgres", Cache: "none", MaxBatchSize: 10}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.Backend = "mysql"
	require.Error(t, bad.Validate())

	bad = valid
	bad.Cache = "memcached"
	require.Error(t, bad.Validate())

	bad = valid
	bad.Cache = "redis"
	bad.CacheTTL = 0
	require.Error(t, bad.Validate())

	bad = valid
	bad.Backend = "sqlite"
	bad.SQLitePath = " "
	require.Error(t, bad.Validate())

	bad = valid
	bad.MaxBatchSize = 0
	require.Error(t, bad.Validate())

	empty := AssignmentsOptions{MaxBatchSize: 1}
	require.NoError(t, empty.Validate())
	require.Equal(t, BackendPostgres, empty.Backend)
	require.Equal(t, CacheNone, empty.Cache)
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
