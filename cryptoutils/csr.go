// Package cryptoutils provides the certificate and CSR helpers used by the
// request validator and the session state machine: PEM/DER parsing,
// public-key equality and challenge material generation.
package cryptoutils

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"

	"github.com/routerlabs/device-cert-backend/interfaces"
)

// Signature algorithms a CSR may be signed with. Anything weaker (MD5,
// SHA-1) is rejected by the validator.
var allowedSignatureAlgorithms = map[x509.SignatureAlgorithm]bool{
	x509.SHA256WithRSA:    true,
	x509.SHA384WithRSA:    true,
	x509.SHA512WithRSA:    true,
	x509.SHA256WithRSAPSS: true,
	x509.SHA384WithRSAPSS: true,
	x509.SHA512WithRSAPSS: true,
	x509.ECDSAWithSHA256:  true,
	x509.ECDSAWithSHA384:  true,
	x509.ECDSAWithSHA512:  true,
	x509.PureEd25519:      true,
}

// oidCommonName is the X.509 attribute type for CN (2.5.4.3).
var oidCommonName = []int{2, 5, 4, 3}

// ParseCSR decodes a PEM-encoded certificate signing request. Failures are
// consistency errors: the CSR always originates from the client.
func ParseCSR(csrPEM []byte) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(csrPEM)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return nil, interfaces.Consistencyf("Invalid CSR format")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, interfaces.Consistencyf("Invalid CSR format")
	}
	return csr, nil
}

// CommonNames returns every CN attribute present in the CSR subject. The
// validator requires exactly one.
func CommonNames(csr *x509.CertificateRequest) []string {
	var names []string
	for _, atv := range csr.Subject.Names {
		if !atv.Type.Equal(oidCommonName) {
			continue
		}
		if s, ok := atv.Value.(string); ok {
			names = append(names, s)
		}
	}
	return names
}

// SignatureAlgorithmAllowed reports whether the CSR self-signature uses an
// acceptable digest algorithm.
func SignatureAlgorithmAllowed(alg x509.SignatureAlgorithm) bool {
	return allowedSignatureAlgorithms[alg]
}

// PublicKeysMatch reports whether the certificate and the CSR carry the
// same public key. The certificate comes from the trusted store, so a
// malformed certificate is a system fault, not a client error.
func PublicKeysMatch(certPEM, csrPEM []byte) (bool, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return false, interfaces.Systemf("stored certificate is not a PEM certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false, interfaces.SystemWrap(err, "stored certificate does not parse")
	}

	csr, err := ParseCSR(csrPEM)
	if err != nil {
		return false, err
	}

	certKey, ok := cert.PublicKey.(interface {
		Equal(crypto.PublicKey) bool
	})
	if !ok {
		return false, interfaces.Systemf("stored certificate has unsupported key type %T", cert.PublicKey)
	}
	return certKey.Equal(csr.PublicKey), nil
}
