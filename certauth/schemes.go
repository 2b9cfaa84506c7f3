package certauth

import (
	"strconv"
	"strings"

	"github.com/routerlabs/device-cert-backend/interfaces"
)

// AuthScheme describes one serial/verification scheme. The digest width and
// the serial-number format differ per scheme; everything else in the
// protocol is scheme-independent.
type AuthScheme struct {
	// Name is the value of the auth_type request field.
	Name string

	// DigestLen is the exact hex length of the digest field in auth
	// requests for this scheme.
	DigestLen int

	// ValidateSN checks the scheme-specific serial-number format.
	ValidateSN func(sn string) error
}

// authSchemes maps auth_type values to their schemes. Unknown values fail
// envelope validation.
var authSchemes = map[string]*AuthScheme{
	"atsha204": {
		Name:       "atsha204",
		DigestLen:  64,
		ValidateSN: validateSNAtsha,
	},
	"otp": {
		Name:       "otp",
		DigestLen:  128,
		ValidateSN: validateSNOTP,
	},
}

// SchemeFor resolves the scheme for an auth_type value.
func SchemeFor(authType string) (*AuthScheme, error) {
	scheme, ok := authSchemes[authType]
	if !ok {
		return nil, interfaces.Consistencyf("Invalid auth type: %s", authType)
	}
	return scheme, nil
}

// validateSNAtsha checks the atsha204 device-id convention: 16 characters,
// five literal zeros, the remaining hex value divisible by 11.
func validateSNAtsha(sn string) error {
	if len(sn) != 16 {
		return interfaces.Consistencyf("SN has invalid length.")
	}
	if !strings.HasPrefix(sn, "00000") {
		return interfaces.Consistencyf("SN has invalid format.")
	}
	value, err := strconv.ParseUint(sn, 16, 64)
	if err != nil {
		return interfaces.Consistencyf("SN has invalid format.")
	}
	if value%11 != 0 {
		return interfaces.Consistencyf("SN has invalid format.")
	}
	return nil
}

// validateSNOTP checks otp serials: 16 hex characters.
func validateSNOTP(sn string) error {
	if len(sn) != 16 {
		return interfaces.Consistencyf("SN has invalid length.")
	}
	if _, err := strconv.ParseUint(sn, 16, 64); err != nil {
		return interfaces.Consistencyf("SN has invalid format.")
	}
	return nil
}
