package hubauth

import (
	"fmt"
	"net/netip"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var hubNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Usernames and role names: 1-64 of letters, digits, '_', '.', '-'.
	_ = v.RegisterValidation("hubname", func(fl validator.FieldLevel) bool {
		return hubNamePattern.MatchString(fl.Field().String())
	})
	return v
}

func validateUsername(username string) error {
	if err := validate.Var(username, "required,hubname"); err != nil {
		return ErrInvalidUsername
	}
	return nil
}

func validateRoleName(name string) error {
	if err := validate.Var(name, "required,hubname"); err != nil {
		return ErrInvalidRoleName
	}
	return nil
}

func validateNewUser(u NewUser) error {
	if err := validate.Struct(u); err != nil {
		if fieldFailed(err, "Role") {
			return ErrInvalidRoleName
		}
		if fieldFailed(err, "Password") {
			return ErrInvalidPassword
		}
		return ErrInvalidUsername
	}
	return nil
}

func fieldFailed(err error, field string) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	for _, fe := range verrs {
		if fe.Field() == field {
			return true
		}
	}
	return false
}

// normalizeBanTarget validates a ban request target and returns its canonical
// form. Addresses are parsed and re-rendered so "::ffff:10.0.0.1" and
// "10.0.0.1" map to the same block.
func normalizeBanTarget(name string, kind BanKind) (string, error) {
	if !kind.Valid() {
		return "", ErrInvalidBanKind
	}
	if kind == BanUser {
		if err := validateUsername(name); err != nil {
			return "", err
		}
		return name, nil
	}

	if err := validate.Var(name, "required,ip"); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, name)
	}
	addr, err := netip.ParseAddr(name)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, name)
	}
	return addr.Unmap().WithZone("").String(), nil
}

func validateBanRequest(req BanRequest) error {
	if err := validate.Struct(req); err != nil {
		switch {
		case fieldFailed(err, "Kind"):
			return ErrInvalidBanKind
		case fieldFailed(err, "Reason"):
			return ErrInvalidReason
		case req.Kind == BanAddress:
			return ErrInvalidAddress
		default:
			return ErrInvalidUsername
		}
	}
	if req.Duration != nil && *req.Duration <= 0 {
		return ErrInvalidDuration
	}
	return nil
}
