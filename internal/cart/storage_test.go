package cart

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestFileStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	storage, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}

	if _, err := storage.Load(ctx, "cart:abc"); !errors.Is(err, ErrNoCart) {
		t.Fatalf("Load on empty dir: err = %v, want ErrNoCart", err)
	}

	want := `[{"productId":"1","quantity":2}]`
	if err := storage.Save(ctx, "cart:abc", []byte(want)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := storage.Load(ctx, "cart:abc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != want {
		t.Errorf("Load = %s, want %s", got, want)
	}

	if filepath.Base(storage.Path("cart:abc")) != "cart_abc.json" {
		t.Errorf("Path = %s", storage.Path("cart:abc"))
	}
}

func TestFileStorage_LeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := storage.Save(ctx, DefaultKey, []byte("[]")); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "cart.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want [cart.json]", names)
	}
}

func TestFileStorage_StoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	storage, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}

	first := Open(ctx, storage, DefaultKey, testLogger())
	first.AddItem(ctx, "42", 3)

	second := Open(ctx, storage, DefaultKey, testLogger())
	if got := second.ItemQuantity("42"); got != 3 {
		t.Errorf("reopened ItemQuantity = %d, want 3", got)
	}
}

func TestNewFileStorage_RequiresDir(t *testing.T) {
	if _, err := NewFileStorage(""); err == nil {
		t.Error("expected error for empty dir")
	}
}

type mockRedis struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMockRedis() *mockRedis {
	return &mockRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mockRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestRedisStorage(t *testing.T) {
	ctx := context.Background()
	mock := newMockRedis()
	storage := &RedisStorage{store: mock, ttl: time.Hour}

	if _, err := storage.Load(ctx, "cart:s1"); !errors.Is(err, ErrNoCart) {
		t.Fatalf("Load missing: err = %v, want ErrNoCart", err)
	}

	if err := storage.Save(ctx, "cart:s1", []byte("[]")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := mock.data["storefront:cart:s1"]; !ok {
		t.Errorf("key not namespaced: %v", mock.data)
	}
	if mock.ttls["storefront:cart:s1"] != time.Hour {
		t.Errorf("ttl = %v, want 1h", mock.ttls["storefront:cart:s1"])
	}

	got, err := storage.Load(ctx, "cart:s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "[]" {
		t.Errorf("Load = %s, want []", got)
	}

	if err := storage.Close(); err != nil {
		t.Errorf("Close without client: %v", err)
	}
}

func TestRedisStorage_GetError(t *testing.T) {
	mock := newMockRedis()
	mock.getErr = errors.New("connection refused")
	storage := &RedisStorage{store: mock}

	_, err := storage.Load(context.Background(), DefaultKey)
	if err == nil || errors.Is(err, ErrNoCart) {
		t.Errorf("Load: err = %v, want wrapped connection error", err)
	}
}

func TestNewRedisStorage_RejectsBadURL(t *testing.T) {
	if _, err := NewRedisStorage(context.Background(), "", 0); err == nil {
		t.Error("expected error for empty url")
	}
	if _, err := NewRedisStorage(context.Background(), "not-a-url", 0); err == nil {
		t.Error("expected error for invalid url")
	}
}
