package certauth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/routerlabs/device-cert-backend/api"
	"github.com/routerlabs/device-cert-backend/cryptoutils"
	"github.com/routerlabs/device-cert-backend/interfaces"
)

// Action names stored in session records and queue elements.
const (
	ActionCerts    = "certs"
	ActionMailpass = "mailpass"
)

// Action is the downstream capability a session authenticates for:
// certificate issuance, or retrieval of the mail password secret. The
// session state machine is action-agnostic; everything action-specific sits
// behind this interface.
type Action interface {
	// Name tags session records and queue elements.
	Name() string

	// Queue is the store list the signing authority consumes for this
	// action.
	Queue() string

	// CheckGetRequest validates the action-specific fields of a get
	// request.
	CheckGetRequest(req *api.Request) error

	// Artifact tries to serve the standing artifact for the request's
	// serial (certificate, secret). It reports served=false when no
	// artifact can be delivered and a new session should be started.
	// authenticated tells whether an auth session for this lineage was
	// resolved ok by the authority.
	Artifact(ctx context.Context, store interfaces.KeyValueStore, req *api.Request, authenticated bool, log *slog.Logger) (reply *api.Reply, served bool, err error)
}

// CertsAction is the certificate-issuance action: sessions carry the CSR,
// signing requests go to the "csr" queue, and the standing artifact is the
// PEM certificate under certificate:{sn}.
type CertsAction struct{}

func (CertsAction) Name() string  { return ActionCerts }
func (CertsAction) Queue() string { return "csr" }

func (CertsAction) CheckGetRequest(req *api.Request) error {
	if req.CSR == "" {
		return interfaces.Consistencyf("Parameter missing: csr")
	}
	return validateCSR(req.CSR, req.SN)
}

func (CertsAction) Artifact(ctx context.Context, store interfaces.KeyValueStore, req *api.Request, authenticated bool, log *slog.Logger) (*api.Reply, bool, error) {
	certBytes, err := store.Get(ctx, certificateKey(req.SN))
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		if authenticated {
			log.Warn("auth ok but certificate not in store", "sn", req.SN)
		} else {
			log.Debug("certificate not in store", "sn", req.SN)
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, interfaces.SystemWrap(err, "certificate lookup failed for sn=%s", req.SN)
	}

	log.Debug("certificate found in store", "sn", req.SN)
	match, err := cryptoutils.PublicKeysMatch(certBytes, []byte(req.CSR))
	if err != nil {
		return nil, false, err
	}
	if !match {
		// key rotation without revocation when authenticated
		if authenticated {
			log.Warn("auth ok but certificate key does not match", "sn", req.SN)
		} else {
			log.Debug("certificate key does not match", "sn", req.SN)
		}
		return nil, false, nil
	}

	log.Debug("certificate restored from store", "sn", req.SN)
	return replyOKCert(certBytes), true, nil
}

// MailpassAction is the secret-retrieval action: sessions carry no CSR,
// signing requests go to the "mailpass" queue, and the artifact is the
// secret under mailpass:{sn}. Unlike certificates there is no key material
// to compare against, so the secret is only served on an authenticated
// session.
type MailpassAction struct{}

func (MailpassAction) Name() string  { return ActionMailpass }
func (MailpassAction) Queue() string { return "mailpass" }

func (MailpassAction) CheckGetRequest(req *api.Request) error {
	return nil
}

func (MailpassAction) Artifact(ctx context.Context, store interfaces.KeyValueStore, req *api.Request, authenticated bool, log *slog.Logger) (*api.Reply, bool, error) {
	if !authenticated {
		return nil, false, nil
	}

	secret, err := store.Get(ctx, mailpassKey(req.SN))
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		log.Warn("auth ok but secret not in store", "sn", req.SN)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, interfaces.SystemWrap(err, "secret lookup failed for sn=%s", req.SN)
	}

	log.Debug("secret restored from store", "sn", req.SN)
	return replyOKSecret(secret), true, nil
}
