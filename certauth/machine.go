package certauth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/routerlabs/device-cert-backend/api"
	"github.com/routerlabs/device-cert-backend/cryptoutils"
	"github.com/routerlabs/device-cert-backend/interfaces"
)

// Config holds the dependencies and settings of one session state machine.
type Config struct {
	// Store is the key-value store holding all protocol state.
	Store interfaces.KeyValueStore

	// Action selects the downstream capability this machine serves.
	Action Action

	// SessionTTL bounds the lifetime of session records.
	SessionTTL time.Duration

	// Log is the structured logger for protocol decisions.
	Log *slog.Logger
}

// Service is the session state machine. It decides the protocol reply for
// validated get and auth requests and evolves the stored session and
// auth-state records. It holds no mutable state of its own; the store is
// the single source of truth, so any number of Services may serve the same
// lineage concurrently.
type Service struct {
	store      interfaces.KeyValueStore
	action     Action
	sessionTTL time.Duration
	log        *slog.Logger
}

// NewService creates a state machine for the configured action.
func NewService(cfg Config) *Service {
	return &Service{
		store:      cfg.Store,
		action:     cfg.Action,
		sessionTTL: cfg.SessionTTL,
		log:        cfg.Log.With("action", cfg.Action.Name()),
	}
}

// Action returns the action this machine serves.
func (s *Service) Action() Action {
	return s.action
}

// Process dispatches a validated request to the get or auth flow. Returned
// errors carry an interfaces.ErrorKind and are translated to wire replies
// by the HTTP handler.
func (s *Service) Process(ctx context.Context, req *api.Request) (*api.Reply, error) {
	switch req.Type {
	case api.RequestTypeGet:
		return s.processGet(ctx, req)
	case api.RequestTypeAuth:
		return s.processAuth(ctx, req)
	default:
		return nil, interfaces.Consistencyf("Invalid request type: %s", req.Type)
	}
}

// processGet handles a get request: start over on renew, otherwise inspect
// the outstanding session's auth state, then try to serve the standing
// artifact, falling back to a fresh session.
func (s *Service) processGet(ctx context.Context, req *api.Request) (*api.Reply, error) {
	sn, sid := req.SN, req.SessionID()
	s.log.Debug("processing get request", "sn", sn, "sid", sid)

	// renew ignores any stored certificate or session
	if req.HasFlag(api.FlagRenew) {
		return s.createSession(ctx, req)
	}

	authenticated := false
	exists, err := s.store.Exists(ctx, sessionKey(sn, sid))
	if err != nil {
		return nil, interfaces.SystemWrap(err, "session lookup failed for sn=%s, sid=%s", sn, sid)
	}
	if exists {
		state, err := s.readAuthState(ctx, sn, sid)
		if err != nil {
			return nil, err
		}
		if state == nil {
			// authority has not processed the queued digest yet
			return replyWait(), nil
		}
		switch state.Status {
		case AuthStateError:
			return nil, interfaces.Systemf("error status for auth_state sn=%s, sid=%s (message=%s)",
				sn, sid, state.Message)
		case AuthStateFail:
			// legitimate negative result from the authority, not a fault
			s.log.Debug("fail status for auth_state", "sn", sn, "sid", sid, "message", state.Message)
			return nil, interfaces.Processf("%s", state.Message)
		case AuthStateOK:
			authenticated = true
		}
	}

	reply, served, err := s.action.Artifact(ctx, s.store, req, authenticated, s.log)
	if err != nil {
		return nil, err
	}
	if served {
		return reply, nil
	}
	return s.createSession(ctx, req)
}

// createSession opens a fresh session lineage: new random session id and
// nonce, empty digest, TTL-bounded record.
func (s *Service) createSession(ctx context.Context, req *api.Request) (*api.Reply, error) {
	sn := req.SN
	s.log.Debug("starting authentication", "sn", sn)

	sid := cryptoutils.RandomHex64()
	nonce := cryptoutils.RandomHex64()
	session := Session{
		AuthType: req.AuthType,
		Nonce:    nonce,
		Digest:   "",
		Flags:    req.Flags,
		Action:   s.action.Name(),
		CSR:      req.CSR,
	}
	raw, err := json.Marshal(&session)
	if err != nil {
		return nil, interfaces.SystemWrap(err, "session record does not marshal for sn=%s", sn)
	}

	if err := s.store.SetWithTTL(ctx, sessionKey(sn, sid), raw, s.sessionTTL); err != nil {
		return nil, interfaces.SystemWrap(err, "session write failed for sn=%s, sid=%s", sn, sid)
	}
	return replyAuthenticate(sid, nonce), nil
}

// readAuthState fetches the authority's verdict for a pending session.
// A nil state means the verdict is still missing.
func (s *Service) readAuthState(ctx context.Context, sn, sid string) (*AuthState, error) {
	raw, err := s.store.Get(ctx, authStateKey(sn, sid))
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, interfaces.SystemWrap(err, "auth_state lookup failed for sn=%s, sid=%s", sn, sid)
	}

	state, err := decodeAuthState(raw)
	if err != nil {
		return nil, interfaces.SystemWrap(err, "auth_state broken for sn=%s, sid=%s", sn, sid)
	}
	return state, nil
}

// processAuth handles an auth request: load the pending session, refuse
// cross-action or repeated submissions, then atomically attach the digest
// and queue the signing request for the authority.
func (s *Service) processAuth(ctx context.Context, req *api.Request) (*api.Reply, error) {
	sn, sid := req.SN, req.SessionID()
	s.log.Debug("processing auth request", "sn", sn, "sid", sid)

	session, err := s.loadSession(ctx, sn, sid)
	if err != nil {
		return nil, err
	}
	s.log.Debug("authentication session found open", "sn", sn, "sid", sid)

	if session.Action != s.action.Name() {
		s.log.Debug("action does not match", "sn", sn, "sid", sid, "session_action", session.Action)
		return nil, interfaces.Processf("Action does not match the original one")
	}
	if session.AuthType != req.AuthType {
		s.log.Debug("auth type does not match", "sn", sn, "sid", sid)
		return nil, interfaces.Processf("Auth type does not match the original one")
	}
	if session.Digest != "" {
		// no second submission, even with an identical digest
		s.log.Debug("digest already saved", "sn", sn, "sid", sid)
		return nil, interfaces.Processf("Digest already saved")
	}

	s.log.Debug("saving digest", "sn", sn, "sid", sid)
	if err := s.submitDigest(ctx, sn, sid, session, req.Digest); err != nil {
		return nil, err
	}
	return replyAccepted(), nil
}

// loadSession fetches and decodes the stored session. A missing session is
// a process error (the client lost or outlived it); a broken record is a
// system error.
func (s *Service) loadSession(ctx context.Context, sn, sid string) (*Session, error) {
	raw, err := s.store.Get(ctx, sessionKey(sn, sid))
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		s.log.Debug("authentication session not found", "sn", sn, "sid", sid)
		return nil, interfaces.Processf("Auth session not found. Did you send 'get' request?")
	}
	if err != nil {
		return nil, interfaces.SystemWrap(err, "session read failed for sn=%s, sid=%s", sn, sid)
	}

	session, err := decodeSession(raw)
	if err != nil {
		return nil, interfaces.SystemWrap(err, "session broken for sn=%s, sid=%s", sn, sid)
	}
	return session, nil
}

// submitDigest attaches the digest to the session and pushes the signing
// request onto the authority's queue. The delete, rewrite and push are one
// transactional pipeline against the store: a partially applied submission
// must never be observable.
//
// Two near-simultaneous auth calls may both observe an empty digest and
// both queue a signing request; the store offers no conditional write on
// the digest field to prevent that. The authority tolerates the duplicate.
func (s *Service) submitDigest(ctx context.Context, sn, sid string, session *Session, digest string) error {
	session.Digest = digest
	sessionRaw, err := json.Marshal(session)
	if err != nil {
		return interfaces.SystemWrap(err, "session record does not marshal for sn=%s, sid=%s", sn, sid)
	}

	queued := signingRequest{
		SN:       sn,
		SID:      sid,
		Nonce:    session.Nonce,
		Digest:   digest,
		Flags:    session.Flags,
		AuthType: session.AuthType,
		Action:   session.Action,
		CSR:      session.CSR,
	}
	queuedRaw, err := json.Marshal(&queued)
	if err != nil {
		return interfaces.SystemWrap(err, "signing request does not marshal for sn=%s, sid=%s", sn, sid)
	}

	err = s.store.ReplaceAndPush(ctx, sessionKey(sn, sid), sessionRaw, s.sessionTTL,
		s.action.Queue(), queuedRaw)
	if err != nil {
		return interfaces.SystemWrap(err, "digest submission failed for sn=%s, sid=%s", sn, sid)
	}
	return nil
}
