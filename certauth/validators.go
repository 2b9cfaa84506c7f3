package certauth

import (
	"crypto/x509"
	"encoding/hex"

	"github.com/routerlabs/device-cert-backend/api"
	"github.com/routerlabs/device-cert-backend/cryptoutils"
	"github.com/routerlabs/device-cert-backend/interfaces"
)

// availFlags is the known request-flag vocabulary.
var availFlags = map[string]bool{
	api.FlagRenew: true,
}

// CheckRequest validates the structure and semantics of a decoded request
// for the given action, before any store access. All failures are
// consistency errors: they are caused by the client and the request is
// unusable.
func CheckRequest(req *api.Request, action Action) error {
	if req == nil {
		return interfaces.Consistencyf("Request is not a valid JSON object")
	}
	if req.Type != api.RequestTypeGet && req.Type != api.RequestTypeAuth {
		return interfaces.Consistencyf("Invalid request type: %s", req.Type)
	}

	scheme, err := SchemeFor(req.AuthType)
	if err != nil {
		return err
	}
	if err := scheme.ValidateSN(req.SN); err != nil {
		return err
	}
	if req.SID == nil {
		return interfaces.Consistencyf("Parameter missing: sid")
	}
	if err := validateSID(*req.SID); err != nil {
		return err
	}

	switch req.Type {
	case api.RequestTypeGet:
		if req.Flags == nil {
			return interfaces.Consistencyf("Parameter missing: flags")
		}
		if err := validateFlags(req.Flags); err != nil {
			return err
		}
		// renew may be sent only before the auth session lineage starts
		if req.HasFlag(api.FlagRenew) && *req.SID != "" {
			return interfaces.Consistencyf("Renewal is allowed only with an empty sid")
		}
		return action.CheckGetRequest(req)
	case api.RequestTypeAuth:
		return validateDigest(req.Digest, scheme)
	}
	return nil
}

// validateSID accepts the empty "new session" sentinel or exactly 64
// lowercase hex characters.
func validateSID(sid string) error {
	if sid == "" {
		return nil
	}
	if len(sid) != 64 || !isLowerHex(sid) {
		return interfaces.Consistencyf("Bad format of sid: %s", sid)
	}
	return nil
}

// validateDigest requires the exact hex width of the request's auth scheme.
// Unlike sids, which this service mints lowercase, digests come from device
// crypto chips and are accepted in either case.
func validateDigest(digest string, scheme *AuthScheme) error {
	if len(digest) != scheme.DigestLen {
		return interfaces.Consistencyf("Bad format of digest: %s", digest)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return interfaces.Consistencyf("Bad format of digest: %s", digest)
	}
	return nil
}

func validateFlags(flags []string) error {
	for _, flag := range flags {
		if !availFlags[flag] {
			return interfaces.Consistencyf("Flag not available: %s", flag)
		}
	}
	return nil
}

// validateCSR parses the PEM CSR and checks that it names exactly the
// requested identity, uses an allowed signature hash and carries a valid
// self-signature.
func validateCSR(csrStr, sn string) error {
	csr, err := cryptoutils.ParseCSR([]byte(csrStr))
	if err != nil {
		return err
	}

	commonNames := cryptoutils.CommonNames(csr)
	if len(commonNames) != 1 {
		return interfaces.Consistencyf("CSR has not exactly one CommonName")
	}
	if commonNames[0] != sn {
		return interfaces.Consistencyf("CSR CommonName (%s) does not match desired identity", commonNames[0])
	}

	if err := validateCSRHash(csr); err != nil {
		return err
	}

	if err := csr.CheckSignature(); err != nil {
		return interfaces.Consistencyf("Request signature is not valid")
	}
	return nil
}

func validateCSRHash(csr *x509.CertificateRequest) error {
	if !cryptoutils.SignatureAlgorithmAllowed(csr.SignatureAlgorithm) {
		return interfaces.Consistencyf("CSR is signed with not allowed hash (%s)", csr.SignatureAlgorithm)
	}
	return nil
}

func isLowerHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
