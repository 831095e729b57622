package store_test

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/league-engine/internal/store"
)

// testStore runs the behaviour every Store implementation must share.
func testStore(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		if _, err := st.Get(ctx, "test:missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("set and get", func(t *testing.T) {
		if err := st.Set(ctx, "test:a", []byte("one")); err != nil {
			t.Fatalf("set: %v", err)
		}
		it, err := st.Get(ctx, "test:a")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(it.Value) != "one" || it.Version != 1 {
			t.Errorf("unexpected item: %q v%d", it.Value, it.Version)
		}

		st.Set(ctx, "test:a", []byte("two"))
		it, _ = st.Get(ctx, "test:a")
		if string(it.Value) != "two" || it.Version != 2 {
			t.Errorf("version should grow on overwrite: %q v%d", it.Value, it.Version)
		}
	})

	t.Run("compare and swap", func(t *testing.T) {
		ok, err := st.CompareAndSwap(ctx, "test:cas", 0, []byte("first"))
		if err != nil || !ok {
			t.Fatalf("create via CAS should succeed: ok=%v err=%v", ok, err)
		}
		ok, _ = st.CompareAndSwap(ctx, "test:cas", 0, []byte("again"))
		if ok {
			t.Error("create via CAS should fail when key exists")
		}
		ok, _ = st.CompareAndSwap(ctx, "test:cas", 7, []byte("stale"))
		if ok {
			t.Error("CAS with stale version should fail")
		}
		ok, _ = st.CompareAndSwap(ctx, "test:cas", 1, []byte("second"))
		if !ok {
			t.Error("CAS with current version should succeed")
		}
		it, _ := st.Get(ctx, "test:cas")
		if string(it.Value) != "second" || it.Version != 2 {
			t.Errorf("unexpected item after CAS: %q v%d", it.Value, it.Version)
		}
	})

	t.Run("keys and delete", func(t *testing.T) {
		st.Set(ctx, "test:list:1", []byte("x"))
		st.Set(ctx, "test:list:2", []byte("y"))
		st.Set(ctx, "other:3", []byte("z"))

		keys, err := st.Keys(ctx, "test:list:")
		if err != nil {
			t.Fatalf("keys: %v", err)
		}
		sort.Strings(keys)
		if len(keys) != 2 || keys[0] != "test:list:1" || keys[1] != "test:list:2" {
			t.Errorf("unexpected keys: %v", keys)
		}

		if err := st.Delete(ctx, "test:list:1"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := st.Get(ctx, "test:list:1"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("deleted key should be gone, got %v", err)
		}
		if err := st.Delete(ctx, "test:list:1"); err != nil {
			t.Errorf("deleting a missing key should not fail: %v", err)
		}
	})

	t.Run("concurrent CAS has one winner", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := st.CompareAndSwap(ctx, "test:race", 0, []byte("mine"))
				if err != nil {
					t.Errorf("cas: %v", err)
					return
				}
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Errorf("expected exactly one winner, got %d", wins)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, store.NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	buf := []byte("abc")
	st.Set(ctx, "k", buf)
	buf[0] = 'z'

	it, _ := st.Get(ctx, "k")
	if string(it.Value) != "abc" {
		t.Errorf("store should not alias caller buffers, got %q", it.Value)
	}
	it.Value[1] = 'z'
	again, _ := st.Get(ctx, "k")
	if string(again.Value) != "abc" {
		t.Errorf("store should not alias returned buffers, got %q", again.Value)
	}
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("invalid TEST_REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisStore(t *testing.T) {
	rdb := redisClient(t)
	ns := "league-test:" + time.Now().Format("150405.000000") + ":"
	testStore(t, store.NewRedisStore(rdb, ns))
}

func TestCachedStore(t *testing.T) {
	rdb := redisClient(t)
	rdb.FlushDB(context.Background())
	testStore(t, store.NewCachedStore(store.NewMemoryStore(), rdb, time.Minute))
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	st := store.NewPostgresStore(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	pool.Exec(ctx, `DELETE FROM kv_entries WHERE key LIKE 'test:%' OR key LIKE 'other:%'`)
	testStore(t, st)
}
