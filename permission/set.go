package permission

import (
	"errors"
	"strings"
)

// Set is an immutable capability bitmask. Assigning a Set copies it.
type Set uint32

// Defined capabilities, in description order.
const (
	BanUnban Set = 1 << iota
	ModifyAccess
	AccessOtherServers
	ViewLogs
	CreateRoles

	// None is the empty set.
	None Set = 0
	// FullAccess has every defined capability bit set.
	FullAccess = BanUnban | ModifyAccess | AccessOtherServers | ViewLogs | CreateRoles
)

const (
	describeDelimiter = " | "
	fullAccessName    = "FULL_ACCESS"
	noAccessName      = "NO_ACCESS"
)

// ErrUnknownCapability is returned when a capability name or bit is not defined.
var ErrUnknownCapability = errors.New("unknown capability")

var capabilityNames = [...]struct {
	bit  Set
	name string
}{
	{BanUnban, "BAN_UNBAN"},
	{ModifyAccess, "MODIFY_ACCESS"},
	{AccessOtherServers, "ACCESS_OTHER_SERVERS"},
	{ViewLogs, "VIEW_LOGS"},
	{CreateRoles, "CREATE_ROLES"},
}

// Has reports whether every bit of capability is present in s. A set holding
// FullAccess has every capability.
func (s Set) Has(capability Set) bool {
	if s&FullAccess == FullAccess {
		return true
	}
	return s&capability == capability
}

// Union returns s | other.
func (s Set) Union(other Set) Set {
	return s | other
}

// Intersect returns s & other.
func (s Set) Intersect(other Set) Set {
	return s & other
}

// Without returns s with every bit of other cleared.
func (s Set) Without(other Set) Set {
	return s &^ other
}

// Valid reports whether s only carries defined capability bits.
func (s Set) Valid() bool {
	return s&^FullAccess == 0
}

// Raw returns the stored integer form.
func (s Set) Raw() uint32 {
	return uint32(s)
}

// Names returns the capability names held by s in a stable order.
func (s Set) Names() []string {
	names := make([]string, 0, len(capabilityNames))
	for _, c := range capabilityNames {
		if s&c.bit == c.bit {
			names = append(names, c.name)
		}
	}
	return names
}

// Describe renders s for humans and audit entries.
func (s Set) Describe() string {
	if s&FullAccess == FullAccess {
		return fullAccessName
	}
	names := s.Names()
	if len(names) == 0 {
		return noAccessName
	}
	return strings.Join(names, describeDelimiter)
}

// String implements fmt.Stringer.
func (s Set) String() string {
	return s.Describe()
}

// CanGrant reports whether an actor holding actor may assign target to
// someone else. The actor needs ModifyAccess and must already hold every bit
// of target.
func CanGrant(actor, target Set) bool {
	if actor&ModifyAccess == 0 {
		return false
	}
	return target&^actor == 0
}

// FromRaw converts a stored integer back into a Set, rejecting undefined bits.
func FromRaw(raw uint32) (Set, error) {
	s := Set(raw)
	if !s.Valid() {
		return None, ErrUnknownCapability
	}
	return s, nil
}

// ParseName returns the single-bit Set for a capability name. "FULL_ACCESS" is
// accepted as a shortcut.
func ParseName(name string) (Set, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == fullAccessName {
		return FullAccess, nil
	}
	for _, c := range capabilityNames {
		if c.name == name {
			return c.bit, nil
		}
	}
	return None, ErrUnknownCapability
}

// Parse folds a list of capability names into one Set.
func Parse(names []string) (Set, error) {
	var s Set
	for _, name := range names {
		bit, err := ParseName(name)
		if err != nil {
			return None, err
		}
		s |= bit
	}
	return s, nil
}
