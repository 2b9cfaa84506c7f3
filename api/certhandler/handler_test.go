package certhandler

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routerlabs/device-cert-backend/api"
	"github.com/routerlabs/device-cert-backend/certauth"
	"github.com/routerlabs/device-cert-backend/ratelimit"
	"github.com/routerlabs/device-cert-backend/storage"
)

const testSN = "0000000A000001F3"

type testServer struct {
	store  *storage.MemoryStore
	server *httptest.Server
}

func newTestServer(t *testing.T, rlimitCfg ratelimit.Config) *testServer {
	t.Helper()
	store := storage.NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	certs := certauth.NewService(certauth.Config{
		Store:      store,
		Action:     certauth.CertsAction{},
		SessionTTL: 300 * time.Second,
		Log:        log,
	})
	mailpass := certauth.NewService(certauth.Config{
		Store:      store,
		Action:     certauth.MailpassAction{},
		SessionTTL: 300 * time.Second,
		Log:        log,
	})
	limiter := ratelimit.New(store, rlimitCfg, log)

	router := chi.NewRouter()
	NewHandler(certs, mailpass, limiter, log).RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{store: store, server: server}
}

func (ts *testServer) post(t *testing.T, path string, body string) *api.Reply {
	t.Helper()
	resp, err := http.Post(ts.server.URL+path, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "protocol failures ride on HTTP 200")

	var reply api.Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	return &reply
}

func (ts *testServer) postRequest(t *testing.T, path string, req *api.Request) *api.Reply {
	t.Helper()
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	return ts.post(t, path, string(raw))
}

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

func strPtr(s string) *string { return &s }

func certsGetRequest(t *testing.T) *api.Request {
	return &api.Request{
		Type:     api.RequestTypeGet,
		AuthType: "atsha204",
		SN:       testSN,
		SID:      strPtr(""),
		Flags:    []string{},
		CSR:      testCSR(t, testSN),
	}
}

func TestHandlerCertsFlow(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	reply := ts.postRequest(t, "/v1", certsGetRequest(t))
	require.Equal(t, api.StatusAuthenticate, reply.Status)
	require.Len(t, reply.SID, 64)
	require.Len(t, reply.Nonce, 64)

	reply = ts.postRequest(t, "/v1", &api.Request{
		Type:     api.RequestTypeAuth,
		AuthType: "atsha204",
		SN:       testSN,
		SID:      strPtr(reply.SID),
		Digest:   strings.Repeat("cd", 32),
	})
	assert.Equal(t, api.StatusAccepted, reply.Status)
	assert.Equal(t, 10, reply.Delay)
	assert.Len(t, ts.store.ListItems("csr"), 1)
}

func TestHandlerCertsAlias(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	// /v1 and /v1/certs serve the same action
	reply := ts.postRequest(t, "/v1/certs", certsGetRequest(t))
	assert.Equal(t, api.StatusAuthenticate, reply.Status)
}

func TestHandlerMailpassFlow(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	reply := ts.postRequest(t, "/v1/mailpass", &api.Request{
		Type:     api.RequestTypeGet,
		AuthType: "atsha204",
		SN:       testSN,
		SID:      strPtr(""),
		Flags:    []string{},
	})
	require.Equal(t, api.StatusAuthenticate, reply.Status)

	reply = ts.postRequest(t, "/v1/mailpass", &api.Request{
		Type:     api.RequestTypeAuth,
		AuthType: "atsha204",
		SN:       testSN,
		SID:      strPtr(reply.SID),
		Digest:   strings.Repeat("cd", 32),
	})
	assert.Equal(t, api.StatusAccepted, reply.Status)
	assert.Len(t, ts.store.ListItems("mailpass"), 1)
}

func TestHandlerInvalidJSON(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	reply := ts.post(t, "/v1", "{not json")
	assert.Equal(t, api.StatusError, reply.Status)
	assert.Equal(t, "Request is not a valid JSON object", reply.Message)
}

func TestHandlerConsistencyErrorVerbatim(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	req := certsGetRequest(t)
	req.SID = nil
	reply := ts.postRequest(t, "/v1", req)
	assert.Equal(t, api.StatusError, reply.Status)
	assert.Equal(t, "Parameter missing: sid", reply.Message)
}

func TestHandlerProcessErrorAsFail(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	reply := ts.postRequest(t, "/v1", &api.Request{
		Type:     api.RequestTypeAuth,
		AuthType: "atsha204",
		SN:       testSN,
		SID:      strPtr(strings.Repeat("ef", 32)),
		Digest:   strings.Repeat("cd", 32),
	})
	assert.Equal(t, api.StatusFail, reply.Status)
	assert.Equal(t, "Auth session not found. Did you send 'get' request?", reply.Message)
}

func TestHandlerSystemErrorIsGeneric(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	// poison the auth_state so the state machine hits a system fault
	getReply := ts.postRequest(t, "/v1", certsGetRequest(t))
	require.Equal(t, api.StatusAuthenticate, getReply.Status)
	key := "auth_state:" + testSN + ":" + getReply.SID
	require.NoError(t, ts.store.SetWithTTL(context.Background(), key, []byte("garbage"), 0))

	req := certsGetRequest(t)
	req.SID = strPtr(getReply.SID)
	reply := ts.postRequest(t, "/v1", req)
	assert.Equal(t, api.StatusError, reply.Status)
	assert.Equal(t, "Internal error, please retry", reply.Message,
		"internals must not leak to the client")
}

func TestHandlerRateLimit(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{
		WindowTime: time.Minute,
		BanTime:    time.Hour,
		MaxHits:    2,
	})

	for i := 0; i < 2; i++ {
		reply := ts.postRequest(t, "/v1", certsGetRequest(t))
		require.Equal(t, api.StatusAuthenticate, reply.Status)
	}
	reply := ts.postRequest(t, "/v1", certsGetRequest(t))
	assert.Equal(t, api.StatusFail, reply.Status)
	assert.Equal(t, "You hit the rate limit", reply.Message)

	// both endpoints share one window
	reply = ts.postRequest(t, "/v1/mailpass", &api.Request{
		Type:     api.RequestTypeGet,
		AuthType: "atsha204",
		SN:       testSN,
		SID:      strPtr(""),
		Flags:    []string{},
	})
	assert.Equal(t, api.StatusFail, reply.Status)
}
