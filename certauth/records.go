package certauth

import (
	"encoding/json"
	"fmt"

	"github.com/routerlabs/device-cert-backend/interfaces"
)

// Store key layout. Bit-exact compatibility with the signing authority
// matters here: it consumes the queues and writes the auth_state and
// certificate keys.
func sessionKey(sn, sid string) string {
	return fmt.Sprintf("session:%s:%s", sn, sid)
}

func authStateKey(sn, sid string) string {
	return fmt.Sprintf("auth_state:%s:%s", sn, sid)
}

func certificateKey(sn string) string {
	return fmt.Sprintf("certificate:%s", sn)
}

func mailpassKey(sn string) string {
	return fmt.Sprintf("mailpass:%s", sn)
}

// Session is the stored record of one authentication attempt. Once Digest
// is non-empty the session is submitted and no further auth request may
// touch it.
type Session struct {
	AuthType string   `json:"auth_type"`
	Nonce    string   `json:"nonce"`
	Digest   string   `json:"digest"`
	Flags    []string `json:"flags"`
	Action   string   `json:"action"`
	CSR      string   `json:"csr_str,omitempty"`
}

// sessionRequiredParams are the fields every stored session must carry.
// csr_str is additionally required for the certs action.
var sessionRequiredParams = []string{"auth_type", "nonce", "digest", "flags", "action"}

// decodeSession parses a stored session record. The record was written by
// this service, so any shape violation is a system error, not a client one.
func decodeSession(raw []byte) (*Session, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, interfaces.SystemWrap(err, "session record does not parse")
	}
	for _, param := range sessionRequiredParams {
		if _, ok := fields[param]; !ok {
			return nil, interfaces.Systemf("session record is missing %q", param)
		}
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, interfaces.SystemWrap(err, "session record does not parse")
	}
	if session.Action == ActionCerts {
		if _, ok := fields["csr_str"]; !ok {
			return nil, interfaces.Systemf("session record is missing %q", "csr_str")
		}
	}
	return &session, nil
}

// Auth-state verdicts written by the signing authority.
const (
	AuthStateOK    = "ok"
	AuthStateFail  = "fail"
	AuthStateError = "error"
)

// AuthState is the authority's verdict on a submitted digest. This service
// only ever reads these records.
type AuthState struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// decodeAuthState parses an auth_state record. The authority is trusted
// infrastructure, so malformed records and unknown statuses are system
// errors.
func decodeAuthState(raw []byte) (*AuthState, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, interfaces.SystemWrap(err, "auth_state record does not parse")
	}
	if _, ok := fields["status"]; !ok {
		return nil, interfaces.Systemf("auth_state record is missing %q", "status")
	}

	var state AuthState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, interfaces.SystemWrap(err, "auth_state record does not parse")
	}
	switch state.Status {
	case AuthStateOK, AuthStateFail, AuthStateError:
		return &state, nil
	default:
		return nil, interfaces.Systemf("auth_state record has unknown status %q", state.Status)
	}
}

// signingRequest is the queue element handed to the signing authority. It
// is write-once: this service never reads it back.
type signingRequest struct {
	SN       string   `json:"sn"`
	SID      string   `json:"sid"`
	Nonce    string   `json:"nonce"`
	Digest   string   `json:"digest"`
	Flags    []string `json:"flags"`
	AuthType string   `json:"auth_type"`
	Action   string   `json:"action"`
	CSR      string   `json:"csr_str,omitempty"`
}
