package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "igrelay/pkg/logx"
)

func openDriver(t *testing.T, driver, name string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), name)}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStoresRoundTripRecipients(t *testing.T) {
	for _, tc := range []struct{ driver, name string }{
		{"file", "users.json"},
		{"sqlite", "igrelay.db"},
	} {
		t.Run(tc.driver, func(t *testing.T) {
			ctx := context.Background()
			st := openDriver(t, tc.driver, tc.name)

			ids, err := st.LoadRecipients(ctx)
			require.NoError(t, err)
			assert.Nil(t, ids, "never-written store loads as nil")

			require.NoError(t, st.SaveRecipients(ctx, []int64{3, 1, 2}))
			ids, err = st.LoadRecipients(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []int64{1, 2, 3}, ids)

			require.NoError(t, st.SaveRecipients(ctx, nil))
			ids, err = st.LoadRecipients(ctx)
			require.NoError(t, err)
			assert.NotNil(t, ids, "written-empty store differs from never-written")
			assert.Empty(t, ids)

			require.NoError(t, st.AppendAudit(ctx, AuditEntry{Plugin: "broadcast", Action: "send", OK: 2}))
		})
	}
}

func TestFileStoreRecordShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.SaveRecipients(context.Background(), []int64{10, 20}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(b, &rec))
	assert.Equal(t, float64(2), rec["total"])
	assert.Len(t, rec["members"], 2)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")
	_, err = os.Stat(filepath.Join(dir, "users.audit.jsonl"))
	assert.NoError(t, err)
}

func TestFileStoreReadsLegacyKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"users":[5,6],"total_users":2}`), 0o600))

	st, err := Open(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ids, err := st.LoadRecipients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, ids)
}

func TestFileStoreCorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	st, err := Open(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	_, err = st.LoadRecipients(context.Background())
	assert.Error(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
}

func TestSQLiteAuditPersists(t *testing.T) {
	st := openDriver(t, "sqlite", "a.db")
	ctx := context.Background()
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{ActorID: 1, Plugin: "registry", Action: "clear"}))
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{ActorID: 1, Plugin: "broadcast", Action: "send", MetaJSON: `{"total":3}`}))

	var n int
	require.NoError(t, st.(*sqliteStore).db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit`).Scan(&n))
	assert.Equal(t, 2, n)
}
