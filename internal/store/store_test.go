package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "tab-1", []byte(`{"state":"recording"}`)))
	require.NoError(t, s.Save(ctx, "tab/2", []byte(`{"state":"idle"}`)))
	require.NoError(t, s.Save(ctx, "tab-1", []byte(`{"state":"paused"}`)))
	require.Error(t, s.Save(ctx, "", []byte(`{}`)))

	got, err := s.Load(ctx, "tab-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"paused"}`, string(got))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tab-1", "tab/2"}, keys)

	require.NoError(t, s.Delete(ctx, "tab-1"))
	require.NoError(t, s.Delete(ctx, "tab-1"), "deleting twice is fine")
	_, err = s.Load(ctx, "tab-1")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = s.Load(ctx, "tab/2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"idle"}`, string(got))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseStore(t, s)
}

func TestMemoryStoreCopies(t *testing.T) {
	s := NewMemoryStore()
	data := []byte("abc")
	require.NoError(t, s.Save(context.Background(), "k", data))
	data[0] = 'x'
	got, err := s.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "steprec.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("STEPREC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STEPREC_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	prefix := "steprec:test:" + t.Name() + time.Now().Format("150405.000000")
	s := NewRedisStore(client, prefix, time.Minute)
	defer s.Close()
	exerciseStore(t, s)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     StoreConfig
		want    any
		wantErr bool
	}{
		{name: "memory", cfg: StoreConfig{Type: TypeMemory}, want: &MemoryStore{}},
		{name: "file", cfg: StoreConfig{Type: TypeFile, Dir: t.TempDir()}, want: &FileStore{}},
		{name: "sqlite", cfg: StoreConfig{Type: TypeSQLite, Path: filepath.Join(t.TempDir(), "s.db")}, want: &SQLiteStore{}},
		{name: "redis", cfg: StoreConfig{Type: TypeRedis, RedisAddr: "localhost:0"}, want: &RedisStore{}},
		{name: "unknown", cfg: StoreConfig{Type: "tape"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewStore(ctx, &tc.cfg)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tc.want, s)
		})
	}
}
