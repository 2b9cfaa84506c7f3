// Package certauth implements the challenge-response authentication
// protocol that gates certificate issuance.
//
// A device proves possession of its private key in two steps. A get
// request opens a session: the service stores a nonce challenge under
// session:{sn}:{sid} and returns it to the client. An auth request submits
// the device's signed response digest: the service attaches it to the
// session and queues a signing request for the external authority, all in
// one store transaction. The authority verifies the digest out-of-band and
// writes its verdict to auth_state:{sn}:{sid} and, on success, the issued
// certificate to certificate:{sn}; the client polls with further get
// requests until the certificate is served.
//
// The package contains the request validators, the per-scheme serial and
// digest format rules, the typed codecs for stored records, and the state
// machine itself. All state lives in the external key-value store; the
// process keeps none.
package certauth
