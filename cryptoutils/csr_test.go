package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routerlabs/device-cert-backend/interfaces"
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func makeCSR(t *testing.T, cn string, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: cn},
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	}, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})
}

func makeCert(t *testing.T, cn string, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestParseCSR(t *testing.T) {
	key := newKey(t)
	csrPEM := makeCSR(t, "0000000A000001F3", key)

	csr, err := ParseCSR(csrPEM)
	require.NoError(t, err)
	assert.Equal(t, []string{"0000000A000001F3"}, CommonNames(csr))
	assert.True(t, SignatureAlgorithmAllowed(csr.SignatureAlgorithm))
}

func TestParseCSRInvalid(t *testing.T) {
	for name, input := range map[string][]byte{
		"empty":     nil,
		"garbage":   []byte("not a csr"),
		"wrong pem": makeCert(t, "cn", newKey(t)),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCSR(input)
			require.Error(t, err)
			assert.Equal(t, interfaces.ConsistencyError, interfaces.KindOf(err))
		})
	}
}

func TestPublicKeysMatch(t *testing.T) {
	key := newKey(t)
	csrPEM := makeCSR(t, "device", key)
	certPEM := makeCert(t, "device", key)

	match, err := PublicKeysMatch(certPEM, csrPEM)
	require.NoError(t, err)
	assert.True(t, match)

	otherCertPEM := makeCert(t, "device", newKey(t))
	match, err = PublicKeysMatch(otherCertPEM, csrPEM)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestPublicKeysMatchBrokenCert(t *testing.T) {
	csrPEM := makeCSR(t, "device", newKey(t))

	// stored cert comes from the trusted store: parse failure is a system fault
	_, err := PublicKeysMatch([]byte("corrupted"), csrPEM)
	require.Error(t, err)
	assert.Equal(t, interfaces.SystemError, interfaces.KindOf(err))
}

func TestRandomHex64(t *testing.T) {
	a := RandomHex64()
	b := RandomHex64()

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	_, err := hex.DecodeString(a)
	assert.NoError(t, err)
	assert.Equal(t, strings.ToLower(a), a, "must be lowercase hex")
}
