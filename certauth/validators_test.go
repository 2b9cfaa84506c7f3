package certauth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routerlabs/device-cert-backend/api"
	"github.com/routerlabs/device-cert-backend/interfaces"
)

// goodSN passes the atsha204 checksum rule (hex value divisible by 11).
const goodSN = "0000000A000001F3"

const goodSID = "4cca5561cf766855a02ee33f229acf4b144fdb7988abd85fd2bad3cfe2546d9f"

func strPtr(s string) *string { return &s }

func testCSR(t *testing.T, cn string) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: cn},
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	}, key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}))
}

func goodGetRequest(t *testing.T) *api.Request {
	return &api.Request{
		Type:     api.RequestTypeGet,
		AuthType: "atsha204",
		SN:       goodSN,
		SID:      strPtr(""),
		Flags:    []string{},
		CSR:      testCSR(t, goodSN),
	}
}

func goodAuthRequest() *api.Request {
	return &api.Request{
		Type:     api.RequestTypeAuth,
		AuthType: "atsha204",
		SN:       goodSN,
		SID:      strPtr(goodSID),
		Digest:   strings.Repeat("ab", 32),
	}
}

func TestCheckRequestGet(t *testing.T) {
	err := CheckRequest(goodGetRequest(t), CertsAction{})
	assert.NoError(t, err)
}

func TestCheckRequestAuth(t *testing.T) {
	err := CheckRequest(goodAuthRequest(), CertsAction{})
	assert.NoError(t, err)
}

func TestCheckRequestEnvelope(t *testing.T) {
	tests := map[string]func(r *api.Request){
		"unknown type":      func(r *api.Request) { r.Type = "renew" },
		"empty type":        func(r *api.Request) { r.Type = "" },
		"unknown auth type": func(r *api.Request) { r.AuthType = "tpm" },
		"missing sid":       func(r *api.Request) { r.SID = nil },
		"short sid":         func(r *api.Request) { r.SID = strPtr("4821") },
		"uppercase sid":     func(r *api.Request) { r.SID = strPtr(strings.ToUpper(goodSID)) },
		"non-hex sid":       func(r *api.Request) { r.SID = strPtr(strings.Repeat("zz", 32)) },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			req := goodGetRequest(t)
			req.SID = strPtr(goodSID)
			mutate(req)
			err := CheckRequest(req, CertsAction{})
			require.Error(t, err)
			assert.Equal(t, interfaces.ConsistencyError, interfaces.KindOf(err))
		})
	}
}

func TestCheckRequestSNAtsha(t *testing.T) {
	tests := map[string]string{
		"short":             "0000000A01",
		"long":              "0000000A000001F3AA",
		"missing prefix":    "1000000A000001F3",
		"not hex":           "00000XYZ000001F3",
		"checksum mismatch": "0000000A000001F4",
	}
	for name, sn := range tests {
		t.Run(name, func(t *testing.T) {
			req := goodGetRequest(t)
			req.SN = sn
			err := CheckRequest(req, CertsAction{})
			require.Error(t, err)
			assert.Equal(t, interfaces.ConsistencyError, interfaces.KindOf(err))
		})
	}
}

func TestCheckRequestFlags(t *testing.T) {
	t.Run("missing flags", func(t *testing.T) {
		req := goodGetRequest(t)
		req.Flags = nil
		assert.Error(t, CheckRequest(req, CertsAction{}))
	})

	t.Run("unknown flag", func(t *testing.T) {
		req := goodGetRequest(t)
		req.Flags = []string{"resign"}
		assert.Error(t, CheckRequest(req, CertsAction{}))
	})

	t.Run("renew with empty sid", func(t *testing.T) {
		req := goodGetRequest(t)
		req.Flags = []string{api.FlagRenew}
		assert.NoError(t, CheckRequest(req, CertsAction{}))
	})

	// renew may only start a lineage, never continue one
	t.Run("renew with sid", func(t *testing.T) {
		req := goodGetRequest(t)
		req.Flags = []string{api.FlagRenew}
		req.SID = strPtr(goodSID)
		err := CheckRequest(req, CertsAction{})
		require.Error(t, err)
		assert.Equal(t, interfaces.ConsistencyError, interfaces.KindOf(err))
	})
}

func TestCheckRequestDigest(t *testing.T) {
	tests := map[string]string{
		"empty":   "",
		"short":   strings.Repeat("ab", 16),
		"long":    strings.Repeat("ab", 64),
		"non-hex": strings.Repeat("zz", 32),
	}
	for name, digest := range tests {
		t.Run(name, func(t *testing.T) {
			req := goodAuthRequest()
			req.Digest = digest
			err := CheckRequest(req, CertsAction{})
			require.Error(t, err)
			assert.Equal(t, interfaces.ConsistencyError, interfaces.KindOf(err))
		})
	}

	// digests are produced by device crypto chips; case must not matter
	for name, digest := range map[string]string{
		"uppercase": strings.Repeat("AB", 32),
		"mixed":     strings.Repeat("aB", 32),
	} {
		t.Run(name, func(t *testing.T) {
			req := goodAuthRequest()
			req.Digest = digest
			assert.NoError(t, CheckRequest(req, CertsAction{}))
		})
	}
}

func TestCheckRequestDigestPerScheme(t *testing.T) {
	// the otp scheme expects a 128-char digest where atsha204 expects 64
	req := goodAuthRequest()
	req.AuthType = "otp"
	req.Digest = strings.Repeat("ab", 64)
	assert.NoError(t, CheckRequest(req, CertsAction{}))

	req.Digest = strings.Repeat("ab", 32)
	assert.Error(t, CheckRequest(req, CertsAction{}))
}

func TestCheckRequestCSR(t *testing.T) {
	t.Run("missing csr", func(t *testing.T) {
		req := goodGetRequest(t)
		req.CSR = ""
		assert.Error(t, CheckRequest(req, CertsAction{}))
	})

	t.Run("garbage csr", func(t *testing.T) {
		req := goodGetRequest(t)
		req.CSR = "not a csr"
		assert.Error(t, CheckRequest(req, CertsAction{}))
	})

	t.Run("common name mismatch", func(t *testing.T) {
		req := goodGetRequest(t)
		req.CSR = testCSR(t, "00000016A8E530BC")
		err := CheckRequest(req, CertsAction{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match desired identity")
	})

	t.Run("mailpass needs no csr", func(t *testing.T) {
		req := goodGetRequest(t)
		req.CSR = ""
		assert.NoError(t, CheckRequest(req, MailpassAction{}))
	})
}

func TestValidateCSRHash(t *testing.T) {
	csr := &x509.CertificateRequest{SignatureAlgorithm: x509.ECDSAWithSHA1}
	err := validateCSRHash(csr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed hash")
}
