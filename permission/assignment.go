package permission

// CustomLabel is the storage label used for identities whose rights were set
// explicitly rather than inherited from a role.
const CustomLabel = "custom"

// Assignment is the tagged role assignment of an identity: either a named role
// whose permissions the identity tracks, or an explicit custom set.
type Assignment struct {
	role   string
	custom bool
	set    Set
}

// Named assigns the identity to the role called name.
func Named(name string) Assignment {
	return Assignment{role: name}
}

// Custom assigns an explicit capability set that no longer tracks any role.
func Custom(set Set) Assignment {
	return Assignment{custom: true, set: set}
}

// IsCustom reports whether the assignment is the Custom variant.
func (a Assignment) IsCustom() bool {
	return a.custom
}

// RoleName returns the role name and true for the Named variant.
func (a Assignment) RoleName() (string, bool) {
	if a.custom {
		return "", false
	}
	return a.role, true
}

// CustomSet returns the explicit set and true for the Custom variant.
func (a Assignment) CustomSet() (Set, bool) {
	if !a.custom {
		return None, false
	}
	return a.set, true
}

// Label is the value persisted in the role column.
func (a Assignment) Label() string {
	if a.custom {
		return CustomLabel
	}
	return a.role
}

func (a Assignment) String() string {
	if a.custom {
		return CustomLabel + "(" + a.set.Describe() + ")"
	}
	return a.role
}

// AssignmentFromStorage rebuilds an Assignment from its persisted label and the
// stored effective set.
func AssignmentFromStorage(label string, effective Set) Assignment {
	if label == CustomLabel {
		return Custom(effective)
	}
	return Named(label)
}
