package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openBackends(t *testing.T) map[string]Database {
	t.Helper()
	ldb, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(ldb.Close)
	return map[string]Database{
		"memdb":   NewMemDB(),
		"leveldb": ldb,
	}
}

func collect(t *testing.T, it Iterator) []string {
	t.Helper()
	defer it.Release()
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Error())
	return keys
}

func TestDatabaseGetMissingKey(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDatabasePrefixIterationIsOrdered(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"a/3", "a/1", "b/1", "a/2"} {
				require.NoError(t, db.Put([]byte(k), []byte("v"+k)))
			}
			require.Equal(t, []string{"a/1", "a/2", "a/3"}, collect(t, db.NewIterator([]byte("a/"), nil)))
			require.Equal(t, []string{"a/2", "a/3"}, collect(t, db.NewIterator([]byte("a/"), []byte("a/2"))))
		})
	}
}

func TestDatabaseBatchWrite(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, db.Put([]byte("gone"), []byte("x")))
			batch := NewBatch()
			batch.Put([]byte("k1"), []byte("v1"))
			batch.Put([]byte("k2"), []byte("v2"))
			batch.Delete([]byte("gone"))
			require.Equal(t, 3, batch.Len())
			require.NoError(t, db.Write(batch))

			got, err := db.Get([]byte("k2"))
			require.NoError(t, err)
			require.Equal(t, []byte("v2"), got)
			_, err = db.Get([]byte("gone"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("key"), []byte("value")))
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()
	got, err := db2.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}
