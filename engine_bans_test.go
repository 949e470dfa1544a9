package hubauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/serverhub/hubauth/store/sqlstore"
)

func countActiveBans(t *testing.T, e *testEngine, name string) int {
	t.Helper()
	var n int
	err := e.store.DB().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM bans WHERE entity_name = ? AND active = ?`, name, true).Scan(&n)
	if err != nil {
		t.Fatalf("count bans: %v", err)
	}
	return n
}

func TestTemporaryAddressBan(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	block, err := e.Ban(ctx, BanRequest{
		EntityName: "203.0.113.7",
		Kind:       BanAddress,
		Reason:     "flooding",
		IssuedBy:   "mona",
		Duration:   durPtr(60 * time.Second),
	})
	if err != nil {
		t.Fatalf("ban: %v", err)
	}
	if block.Permanent() || block.IssuedBy != "mona" {
		t.Fatalf("unexpected block %+v", block)
	}

	blocked, err := e.IsBlocked(ctx, "203.0.113.7", BanAddress)
	if err != nil || !blocked {
		t.Fatalf("expected address blocked, blocked=%v err=%v", blocked, err)
	}
	if calls := e.revoker.calls(); len(calls) != 1 || calls[0] != "203.0.113.7" {
		t.Fatalf("expected revoker called once for the address, got %v", calls)
	}

	e.clock.Advance(61 * time.Second)

	blocked, err = e.IsBlocked(ctx, "203.0.113.7", BanAddress)
	if err != nil || blocked {
		t.Fatalf("expected ban lapsed, blocked=%v err=%v", blocked, err)
	}
	if n := countActiveBans(t, e, "203.0.113.7"); n != 0 {
		t.Fatalf("expected lapsed row deactivated, %d active", n)
	}
	if _, err := e.ActiveBan(ctx, "203.0.113.7", BanAddress); !errors.Is(err, ErrBanNotFound) {
		t.Fatalf("expected ErrBanNotFound, got %v", err)
	}
}

func TestBanAtExactUnblockTimeStillBlocks(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Ban(ctx, BanRequest{EntityName: "kev", Kind: BanUser, Duration: durPtr(time.Minute)}); err != nil {
		t.Fatalf("ban: %v", err)
	}
	e.clock.Advance(time.Minute)
	if blocked, err := e.IsBlocked(ctx, "kev", BanUser); err != nil || !blocked {
		t.Fatalf("expected still blocked at unblock time, blocked=%v err=%v", blocked, err)
	}
}

func TestUnbanIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Ban(ctx, BanRequest{EntityName: "kev", Kind: BanUser, Reason: "griefing"}); err != nil {
		t.Fatalf("ban: %v", err)
	}
	for range 2 {
		if err := e.Unban(ctx, "mona", "kev", BanUser); err != nil {
			t.Fatalf("unban: %v", err)
		}
	}
	if blocked, err := e.IsBlocked(ctx, "kev", BanUser); err != nil || blocked {
		t.Fatalf("expected unbanned, blocked=%v err=%v", blocked, err)
	}
	if err := e.Unban(ctx, "mona", "never-banned", BanUser); err != nil {
		t.Fatalf("unbanning an unbanned entity should succeed: %v", err)
	}
}

func TestBanOverwritesActiveBan(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Ban(ctx, BanRequest{EntityName: "kev", Kind: BanUser, Reason: "first", Duration: durPtr(time.Minute)}); err != nil {
		t.Fatalf("first ban: %v", err)
	}
	second, err := e.Ban(ctx, BanRequest{EntityName: "kev", Kind: BanUser, Reason: "second"})
	if err != nil {
		t.Fatalf("second ban: %v", err)
	}

	if n := countActiveBans(t, e, "kev"); n != 1 {
		t.Fatalf("expected exactly one active ban, got %d", n)
	}
	active, err := e.ActiveBan(ctx, "kev", BanUser)
	if err != nil {
		t.Fatalf("active ban: %v", err)
	}
	if active.ID != second.ID || active.Reason != "second" || !active.Permanent() {
		t.Fatalf("expected the newer ban in force, got %+v", active)
	}
}

func TestUserAndAddressBansAreIndependent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Ban(ctx, BanRequest{EntityName: "kev", Kind: BanUser}); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if len(e.revoker.calls()) != 0 {
		t.Fatal("user bans must not call the revoker")
	}
	if blocked, err := e.IsBlocked(ctx, "10.0.0.1", BanAddress); err != nil || blocked {
		t.Fatalf("address must not be blocked, blocked=%v err=%v", blocked, err)
	}
}

func TestBanValidation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  BanRequest
		want error
	}{
		{"empty name", BanRequest{Kind: BanUser}, ErrInvalidUsername},
		{"bad kind", BanRequest{EntityName: "kev", Kind: "realm"}, ErrInvalidBanKind},
		{"bad address", BanRequest{EntityName: "300.1.1.1", Kind: BanAddress}, ErrInvalidAddress},
		{"hostname address", BanRequest{EntityName: "example.com", Kind: BanAddress}, ErrInvalidAddress},
		{"zero duration", BanRequest{EntityName: "kev", Kind: BanUser, Duration: durPtr(0)}, ErrInvalidDuration},
		{"negative duration", BanRequest{EntityName: "kev", Kind: BanUser, Duration: durPtr(-time.Second)}, ErrInvalidDuration},
		{"long reason", BanRequest{EntityName: "kev", Kind: BanUser, Reason: strings.Repeat("r", 513)}, ErrInvalidReason},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Ban(ctx, tc.req)
			if !errors.Is(err, tc.want) || !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAddressBanNormalization(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	block, err := e.Ban(ctx, BanRequest{EntityName: "::ffff:198.51.100.2", Kind: BanAddress})
	if err != nil {
		t.Fatalf("ban: %v", err)
	}
	if block.EntityName != "198.51.100.2" {
		t.Fatalf("expected canonical address, got %q", block.EntityName)
	}
	if blocked, err := e.IsBlocked(ctx, "198.51.100.2", BanAddress); err != nil || !blocked {
		t.Fatalf("expected canonical form blocked, blocked=%v err=%v", blocked, err)
	}

	if _, err := e.Ban(ctx, BanRequest{EntityName: "2001:DB8::1", Kind: BanAddress}); err != nil {
		t.Fatalf("ban v6: %v", err)
	}
	if blocked, err := e.IsBlocked(ctx, "2001:db8:0::1", BanAddress); err != nil || !blocked {
		t.Fatalf("expected v6 spelling blocked, blocked=%v err=%v", blocked, err)
	}
}

func TestBanRevocationFailureKeepsBan(t *testing.T) {
	e := newTestEngine(t)
	e.revoker.err = errors.New("game server unreachable")
	ctx := context.Background()

	block, err := e.Ban(ctx, BanRequest{EntityName: "192.0.2.50", Kind: BanAddress})
	if !errors.Is(err, ErrRevocationFailed) {
		t.Fatalf("expected ErrRevocationFailed, got %v", err)
	}
	if block.ID == "" {
		t.Fatal("expected the committed block to be returned")
	}
	if blocked, err := e.IsBlocked(ctx, "192.0.2.50", BanAddress); err != nil || !blocked {
		t.Fatalf("ban must stay in force, blocked=%v err=%v", blocked, err)
	}
	if got := e.MetricsSnapshot().Counters[MetricAddressRevocationFailed]; got != 1 {
		t.Fatalf("expected revocation failure metric, got %d", got)
	}
}

func TestConcurrentBansLeaveOneActive(t *testing.T) {
	e := newTestEngine(t, func(cfg *Config, _ *Builder, _ *sqlstore.Store) {
		cfg.Bans.InsertRetries = 5
	})
	ctx := context.Background()

	var g errgroup.Group
	for range 6 {
		g.Go(func() error {
			_, err := e.Ban(ctx, BanRequest{EntityName: "kev", Kind: BanUser, Reason: "raid"})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent ban: %v", err)
	}
	if n := countActiveBans(t, e, "kev"); n != 1 {
		t.Fatalf("expected one active ban, got %d", n)
	}
}

func TestActiveBansSkipsExpired(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Ban(ctx, BanRequest{EntityName: "short", Kind: BanUser, Duration: durPtr(time.Minute)}); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if _, err := e.Ban(ctx, BanRequest{EntityName: "long", Kind: BanUser}); err != nil {
		t.Fatalf("ban: %v", err)
	}
	e.clock.Advance(2 * time.Minute)

	blocks, err := e.ActiveBans(ctx)
	if err != nil {
		t.Fatalf("active bans: %v", err)
	}
	if len(blocks) != 1 || blocks[0].EntityName != "long" {
		t.Fatalf("expected only the permanent ban, got %+v", blocks)
	}
}
