package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/lendops/modules/assignments/services"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "assignment-history-cli")
	if err != nil {
		panic(err)
	}
	_ = os.Setenv("LOG_PATH", filepath.Join(dir, "app.log"))
	_ = os.Setenv("LOG_LEVEL", "silent")
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type cli struct {
	t      *testing.T
	dbPath string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	return &cli{t: t, dbPath: filepath.Join(t.TempDir(), "assignments.db")}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--backend", "sqlite", "--sqlite-path", c.dbPath, "--cache", "memory"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(v any, args ...string) {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	if v != nil {
		require.NoError(c.t, json.Unmarshal([]byte(out), v), out)
	}
}

func TestCLI_EndToEnd(t *testing.T) {
	c := newCLI(t)
	entity, routeA, routeB := uuid.NewString(), uuid.NewString(), uuid.NewString()

	var migrated migrateOutput
	c.mustRun(&migrated, "migrate")
	require.Equal(t, "sqlite", migrated.Backend)

	c.mustRun(nil, "catalog", "add-owner", "--id", routeA, "--name", "Route A")
	c.mustRun(nil, "catalog", "add-owner", "--id", routeB, "--name", "Route B")
	c.mustRun(nil, "catalog", "add-entity", "--id", entity, "--name", "Location 1")

	var changed services.ChangeOwnerResult
	c.mustRun(&changed, "change-owner", "--entities", entity, "--owner", routeA, "--effective", "2020-01-01")
	require.Equal(t, routeA, changed.NewOwnerID.String())

	var upserted services.UpsertResult
	c.mustRun(&upserted, "upsert", "--entities", entity, "--owner", routeB, "--start", "2020-01-01", "--end", "2025-01-01")
	require.Len(t, upserted.Adjusted, 1)

	var owner ownerOutput
	c.mustRun(&owner, "owner-at", "--entity", entity, "--date", "2022-03-04")
	require.NotNil(t, owner.OwnerID)
	require.Equal(t, routeB, owner.OwnerID.String())

	c.mustRun(&owner, "owner-at", "--entity", entity, "--at", "2025-01-02T01:00:00Z")
	require.Equal(t, routeA, owner.OwnerID.String())

	var current ownerOutput
	c.mustRun(&current, "current", "--entity", entity)
	require.Equal(t, routeA, current.OwnerID.String())

	var lookups []lookupOutput
	c.mustRun(&lookups, "owners-at-dates", "--lookup", entity+"@2019-12-31", "--lookup", entity+"@2024-12-31")
	require.Len(t, lookups, 2)
	require.Nil(t, lookups[0].OwnerID)
	require.Equal(t, "Route B", lookups[1].OwnerName)

	var owned struct {
		EntityIDs []uuid.UUID `json:"entity_ids"`
	}
	c.mustRun(&owned, "entities-owned", "--owners", routeB, "--from", "2024-01-01", "--to", "2026-01-01")
	require.Len(t, owned.EntityIDs, 1)

	var history struct {
		Records []struct {
			ID uuid.UUID `json:"id"`
		} `json:"records"`
	}
	c.mustRun(&history, "history", "--entity", entity)
	require.Len(t, history.Records, 2)

	out, err := c.run("update", "--id", history.Records[1].ID.String(), "--owner", routeB, "--start", "2020-01-01", "--end", "2025-03-01")
	require.Error(t, err)
	require.Equal(t, exitValidation, exitCode(err))
	var buf bytes.Buffer
	writeError(&buf, err)
	require.Contains(t, buf.String(), services.CodeOverlap)
	require.Contains(t, buf.String(), history.Records[0].ID.String())
	require.Empty(t, out)

	c.mustRun(nil, "delete", "--id", history.Records[0].ID.String())
	c.mustRun(&current, "current", "--entity", entity)
	require.Nil(t, current.OwnerID)
}

func TestCLI_InputValidation(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("upsert", "--entities", uuid.NewString(), "--owner", uuid.NewString(), "--start", "2024-01-01")
	require.Error(t, err)
	require.Equal(t, exitValidation, exitCode(err))
	var buf bytes.Buffer
	writeError(&buf, err)
	require.Contains(t, buf.String(), services.CodeInvalidBody)
	require.Contains(t, buf.String(), "EndDate")

	_, err = c.run("owner-at", "--entity", "nope")
	require.Equal(t, exitValidation, exitCode(err))

	_, err = c.run("owners-at-dates", "--lookup", "missing-separator")
	require.Equal(t, exitValidation, exitCode(err))

	_, err = c.run("--cache", "bogus", "current", "--entity", uuid.NewString())
	require.Equal(t, exitValidation, exitCode(err))
}

func TestCLI_MissingEntityIsNotFound(t *testing.T) {
	c := newCLI(t)
	owner := uuid.NewString()
	c.mustRun(nil, "catalog", "add-owner", "--id", owner, "--name", "Route")

	_, err := c.run("change-owner", "--entities", uuid.NewString(), "--owner", owner, "--effective", "2024-01-01")
	require.Error(t, err)
	require.Equal(t, exitNotFound, exitCode(err))

	out, err := c.run("change-owner", "--entities", uuid.NewString()+","+uuid.NewString(), "--owner", owner, "--effective", "2024-01-01")
	require.ErrorIs(t, err, errBatchFailed)
	require.Equal(t, exitNotFound, exitCode(err))
	var res services.BatchChangeOwnerResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.False(t, res.Success)
	require.Len(t, res.Errors, 2)
}

func TestCLI_PushesMetricsAfterRun(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(gateway.Close)

	c := newCLI(t)
	c.mustRun(nil, "migrate")
	c.mustRun(nil, "--metrics-push-url", gateway.URL, "current", "--entity", uuid.NewString())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	require.True(t, strings.HasPrefix(paths[0], "POST /metrics/job/assignment_history/instance/"), paths[0])
}

func TestCLI_MetricsPushFailureKeepsResult(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(gateway.Close)

	c := newCLI(t)
	c.mustRun(nil, "migrate")
	var current ownerOutput
	c.mustRun(&current, "--metrics-push-url", gateway.URL, "current", "--entity", uuid.NewString())
	require.Nil(t, current.OwnerID)
}

func TestRedisClient(t *testing.T) {
	client, err := redisClient("localhost:6379")
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", client.Options().Addr)
	require.NoError(t, client.Close())

	client, err = redisClient("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	require.Equal(t, "cache:6380", client.Options().Addr)
	require.Equal(t, 2, client.Options().DB)
	require.NoError(t, client.Close())

	_, err = redisClient(" ")
	require.Error(t, err)
}
