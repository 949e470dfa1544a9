package hubauth

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/serverhub/hubauth/permission"
	"github.com/serverhub/hubauth/store/sqlstore"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingRevoker struct {
	mu        sync.Mutex
	addresses []string
	err       error
}

func (r *recordingRevoker) RevokeAddress(_ context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addresses = append(r.addresses, address)
	return r.err
}

func (r *recordingRevoker) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.addresses...)
}

type testEngine struct {
	*Engine
	clock   *testClock
	revoker *recordingRevoker
	redis   *miniredis.Miniredis
	rdb     *redis.Client
	store   *sqlstore.Store
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.SecretHashCost = bcrypt.MinCost
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newTestEngine(t *testing.T, mutate ...func(*Config, *Builder, *sqlstore.Store)) *testEngine {
	t.Helper()

	mr, rdb := newTestRedis(t)
	st, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "hub.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	clock := newTestClock()
	revoker := &recordingRevoker{}

	cfg := testConfig()
	builder := New().
		WithRedis(rdb).
		WithStore(st).
		WithResourceRevoker(revoker).
		WithClock(clock.Now)
	for _, fn := range mutate {
		fn(&cfg, builder, st)
	}
	builder.WithConfig(cfg)

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	if err := engine.CreateBaseRoles(context.Background()); err != nil {
		t.Fatalf("create base roles: %v", err)
	}

	return &testEngine{Engine: engine, clock: clock, revoker: revoker, redis: mr, rdb: rdb, store: st}
}

func mustCreateUser(t *testing.T, e *testEngine, username, role string) User {
	t.Helper()
	user, err := e.CreateUser(context.Background(), NewUser{
		Username: username,
		Password: "correct-horse-battery",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func mustLogin(t *testing.T, e *testEngine, username string) string {
	t.Helper()
	res, err := e.Login(context.Background(), username, "correct-horse-battery")
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return res.Token
}

func setPtr(s permission.Set) *permission.Set { return &s }

func strPtr(s string) *string { return &s }

func durPtr(d time.Duration) *time.Duration { return &d }
