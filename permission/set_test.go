package permission

import (
	"errors"
	"testing"
)

func allSets() []Set {
	sets := make([]Set, 0, int(FullAccess)+1)
	for raw := uint32(0); raw <= uint32(FullAccess); raw++ {
		sets = append(sets, Set(raw))
	}
	return sets
}

func TestHasIsBitExactSubset(t *testing.T) {
	s := BanUnban | ViewLogs
	if !s.Has(BanUnban) || !s.Has(ViewLogs) || !s.Has(BanUnban|ViewLogs) {
		t.Fatal("expected held bits to be reported")
	}
	if s.Has(ModifyAccess) {
		t.Fatal("modify access must not be implied")
	}
	if s.Has(BanUnban | ModifyAccess) {
		t.Fatal("partial overlap must not satisfy Has")
	}
	if !None.Has(None) {
		t.Fatal("empty capability is always held")
	}
}

func TestFullAccessShortCircuits(t *testing.T) {
	for _, c := range allSets() {
		if !FullAccess.Has(c) {
			t.Fatalf("full access should hold %s", c)
		}
	}
}

func TestCanGrantImpliesHas(t *testing.T) {
	for _, a := range allSets() {
		for _, b := range allSets() {
			if CanGrant(a, b) && !a.Has(b) {
				t.Fatalf("CanGrant(%s, %s) without Has", a, b)
			}
		}
	}
}

func TestCanGrantIsNotSymmetricWithoutModifyAccess(t *testing.T) {
	for _, a := range allSets() {
		for _, b := range allSets() {
			if b.Has(ModifyAccess) || !CanGrant(a, b) {
				continue
			}
			if CanGrant(b, a.Without(ModifyAccess)) {
				t.Fatalf("%s could grant back to %s", b, a)
			}
		}
	}
}

func TestCanGrantRequiresModifyAccess(t *testing.T) {
	moderator := BanUnban | ViewLogs
	if CanGrant(moderator, None) {
		t.Fatal("actor without modify access cannot grant even the empty set")
	}
	if CanGrant(moderator, ModifyAccess) {
		t.Fatal("moderator must not grant modify access")
	}

	admin := BanUnban | ViewLogs | ModifyAccess
	if !CanGrant(admin, moderator) {
		t.Fatal("admin should grant a subset of its own bits")
	}
	if CanGrant(admin, CreateRoles) {
		t.Fatal("admin must not grant a bit it does not hold")
	}
	if !CanGrant(FullAccess, FullAccess) {
		t.Fatal("owner should grant full access")
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		set  Set
		want string
	}{
		{None, "NO_ACCESS"},
		{FullAccess, "FULL_ACCESS"},
		{BanUnban, "BAN_UNBAN"},
		{ViewLogs | BanUnban, "BAN_UNBAN | VIEW_LOGS"},
		{CreateRoles | ModifyAccess | AccessOtherServers, "MODIFY_ACCESS | ACCESS_OTHER_SERVERS | CREATE_ROLES"},
	}
	for _, tc := range cases {
		if got := tc.set.Describe(); got != tc.want {
			t.Fatalf("Describe(%d) = %q, want %q", tc.set, got, tc.want)
		}
	}
}

func TestParseRoundTripsNames(t *testing.T) {
	for _, s := range allSets() {
		parsed, err := Parse(s.Names())
		if err != nil {
			t.Fatalf("Parse(%v): %v", s.Names(), err)
		}
		if parsed != s {
			t.Fatalf("Parse(Names(%d)) = %d", s, parsed)
		}
	}

	if _, err := Parse([]string{"ban_unban", "launch_missiles"}); !errors.Is(err, ErrUnknownCapability) {
		t.Fatalf("expected ErrUnknownCapability, got %v", err)
	}
	if s, err := ParseName(" full_access "); err != nil || s != FullAccess {
		t.Fatalf("expected full access shortcut, got %s %v", s, err)
	}
}

func TestFromRawRejectsUndefinedBits(t *testing.T) {
	if _, err := FromRaw(uint32(FullAccess) + 1); !errors.Is(err, ErrUnknownCapability) {
		t.Fatalf("expected ErrUnknownCapability, got %v", err)
	}
	s, err := FromRaw(uint32(BanUnban | ViewLogs))
	if err != nil || s != BanUnban|ViewLogs {
		t.Fatalf("unexpected FromRaw result %s %v", s, err)
	}
}

func TestAssignmentVariants(t *testing.T) {
	named := Named("moderator")
	if named.IsCustom() {
		t.Fatal("named assignment reported custom")
	}
	if name, ok := named.RoleName(); !ok || name != "moderator" {
		t.Fatalf("unexpected role name %q %v", name, ok)
	}
	if _, ok := named.CustomSet(); ok {
		t.Fatal("named assignment has no custom set")
	}

	custom := Custom(ViewLogs)
	if !custom.IsCustom() || custom.Label() != CustomLabel {
		t.Fatalf("unexpected custom assignment %v", custom)
	}
	if set, ok := custom.CustomSet(); !ok || set != ViewLogs {
		t.Fatalf("unexpected custom set %s %v", set, ok)
	}

	restored := AssignmentFromStorage(CustomLabel, ViewLogs)
	if restored != custom {
		t.Fatalf("storage round trip mismatch: %v vs %v", restored, custom)
	}
	if AssignmentFromStorage("admin", FullAccess) != Named("admin") {
		t.Fatal("named label should restore a named assignment")
	}
}
