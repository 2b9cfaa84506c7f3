// Package api defines the wire contract of the certificate-issuance
// authentication service: the JSON request envelope accepted on the POST
// endpoints and the reply shapes returned to clients.
package api

// Request types accepted in the "type" field.
const (
	RequestTypeGet  = "get"
	RequestTypeAuth = "auth"
)

// FlagRenew requests an unconditional fresh session, bypassing any cached
// certificate. Legal only on the first request of a lineage (empty sid).
const FlagRenew = "renew"

// Reply statuses.
const (
	StatusAuthenticate = "authenticate"
	StatusWait         = "wait"
	StatusAccepted     = "accepted"
	StatusOK           = "ok"
	StatusFail         = "fail"
	StatusError        = "error"
)

// Request is the decoded JSON request envelope. SID is a pointer so the
// validator can tell a missing field from the empty-string "new session"
// sentinel; Flags is nil when the field was absent.
type Request struct {
	Type     string   `json:"type"`
	AuthType string   `json:"auth_type"`
	SN       string   `json:"sn"`
	SID      *string  `json:"sid"`
	Flags    []string `json:"flags"`
	CSR      string   `json:"csr"`
	Digest   string   `json:"digest"`
}

// SessionID returns the sid, treating a missing field as empty. The
// validator rejects requests without a sid before anything reads it.
func (r *Request) SessionID() string {
	if r.SID == nil {
		return ""
	}
	return *r.SID
}

// HasFlag reports whether flag is present in the request flags.
func (r *Request) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Reply is the JSON response envelope. Exactly the fields relevant to the
// status are populated; the rest are omitted.
type Reply struct {
	Status  string `json:"status"`
	SID     string `json:"sid,omitempty"`
	Nonce   string `json:"nonce,omitempty"`
	Delay   int    `json:"delay,omitempty"`
	Cert    string `json:"cert,omitempty"`
	Secret  string `json:"secret,omitempty"`
	Message string `json:"message,omitempty"`
}
