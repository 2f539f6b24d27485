package store

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"resourceruntime/internal/config"
	"resourceruntime/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Config{Level: "fatal"})
	os.Exit(m.Run())
}

func testSnapshot() map[string]string {
	return map[string]string{
		SchemaVersionKey: SchemaVersion,
		"phase":          "background",
		"resourceCount":  "3",
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	want := testSnapshot()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch: got %v, want %v", got, want)
	}

	// No temp file left behind after the atomic rename.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "never-written.json"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load of missing snapshot must not error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil snapshot, got %v", got)
	}
}

func TestFileStore_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ctx := context.Background()
	if err := s.Save(ctx, map[string]string{"phase": "background", "stale": "yes"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save(ctx, map[string]string{"phase": "terminating"}); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got["phase"] != "terminating" {
		t.Errorf("expected latest snapshot, got %v", got)
	}
	if _, ok := got["stale"]; ok {
		t.Errorf("old keys must not survive overwrite: %v", got)
	}
}

func TestFileStore_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "snapshot.json")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := s.Save(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func TestFileStore_EmptyPath(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestRedisStore_SaveLoad(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStore(config.RedisConfig{Addr: mr.Addr()}, config.SOCKSConfig{})
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	want := testSnapshot()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch: got %v, want %v", got, want)
	}
}

func TestRedisStore_LoadMissing(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStore(config.RedisConfig{Addr: mr.Addr()}, config.SOCKSConfig{})
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer s.Close()

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load of missing snapshot must not error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil snapshot, got %v", got)
	}
}

func TestRedisStore_OverwriteDropsOldKeys(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStore(config.RedisConfig{Addr: mr.Addr(), Key: "test:snap"}, config.SOCKSConfig{})
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Save(ctx, map[string]string{"phase": "background", "stale": "yes"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save(ctx, map[string]string{"phase": "terminating"}); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]string{"phase": "terminating"}) {
		t.Errorf("expected old hash replaced, got %v", got)
	}
}

func TestRedisStore_ConnectFailure(t *testing.T) {
	_, err := NewRedisStore(config.RedisConfig{Addr: "127.0.0.1:1"}, config.SOCKSConfig{})
	if err == nil {
		t.Error("expected connection error for unreachable Redis")
	}
}

func TestNewStore(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(config.StoreConfig{Type: "file", FilePath: filepath.Join(dir, "snap.json")}, config.SOCKSConfig{})
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("expected *FileStore, got %T", s)
	}

	// Empty type defaults to file.
	s, err = NewStore(config.StoreConfig{FilePath: filepath.Join(dir, "snap2.json")}, config.SOCKSConfig{})
	if err != nil {
		t.Fatalf("default store: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("expected *FileStore, got %T", s)
	}

	mr := miniredis.RunT(t)
	s, err = NewStore(config.StoreConfig{Type: "redis", Redis: config.RedisConfig{Addr: mr.Addr()}}, config.SOCKSConfig{})
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	if _, ok := s.(*RedisStore); !ok {
		t.Errorf("expected *RedisStore, got %T", s)
	}
	s.Close()

	if _, err := NewStore(config.StoreConfig{Type: "etcd"}, config.SOCKSConfig{}); err == nil {
		t.Error("expected error for unknown store type")
	}
}
