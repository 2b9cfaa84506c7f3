// Package certhandler is the transport adapter in front of the session
// state machine: it decodes the JSON envelope, runs the validator and the
// rate limiter, dispatches to the state machine for the endpoint's action,
// and is the single place where the error taxonomy is translated to wire
// replies and log severities.
package certhandler

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/routerlabs/device-cert-backend/api"
	"github.com/routerlabs/device-cert-backend/certauth"
	"github.com/routerlabs/device-cert-backend/interfaces"
	"github.com/routerlabs/device-cert-backend/metrics"
	"github.com/routerlabs/device-cert-backend/ratelimit"
)

// maxBodySize bounds the request body (CSRs are small).
const maxBodySize = 256 * 1024

// genericErrorMessage is all a client learns about a system-tier fault.
const genericErrorMessage = "Internal error, please retry"

// Handler serves the protocol endpoints.
type Handler struct {
	certs    *certauth.Service
	mailpass *certauth.Service
	limiter  *ratelimit.Limiter
	log      *slog.Logger
}

// NewHandler creates the handler for both actions. The limiter is shared:
// hits against either endpoint count toward the same per-address window.
func NewHandler(certs, mailpass *certauth.Service, limiter *ratelimit.Limiter, log *slog.Logger) *Handler {
	return &Handler{
		certs:    certs,
		mailpass: mailpass,
		limiter:  limiter,
		log:      log,
	}
}

// RegisterRoutes configures the protocol endpoints:
//   - POST /v1 and /v1/certs - certificate issuance
//   - POST /v1/mailpass - mail password retrieval
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/v1", h.HandleCerts)
	r.Post("/v1/certs", h.HandleCerts)
	r.Post("/v1/mailpass", h.HandleMailpass)
}

// HandleCerts processes requests for the certificate-issuance action.
func (h *Handler) HandleCerts(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.certs)
}

// HandleMailpass processes requests for the secret-retrieval action.
func (h *Handler) HandleMailpass(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.mailpass)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, svc *certauth.Service) {
	reply := h.process(r, svc)
	metrics.RequestsTotal.WithLabelValues(svc.Action().Name(), reply.Status).Inc()

	// protocol failures ride on HTTP 200; the status field is the contract
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		h.log.Error("failed to encode reply", "err", err)
	}
}

func (h *Handler) process(r *http.Request, svc *certauth.Service) *api.Reply {
	var req api.Request
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err := decoder.Decode(&req); err != nil {
		h.log.Debug("request is not a valid JSON object", "err", err)
		return &api.Reply{Status: api.StatusError, Message: "Request is not a valid JSON object"}
	}

	if err := h.limiter.Check(r.Context(), remoteAddr(r)); err != nil {
		return h.replyForError(err, &req)
	}
	if err := certauth.CheckRequest(&req, svc.Action()); err != nil {
		return h.replyForError(err, &req)
	}

	reply, err := svc.Process(r.Context(), &req)
	if err != nil {
		return h.replyForError(err, &req)
	}
	return reply
}

// replyForError is the single translation point from the three-tier error
// taxonomy to the wire shape. Consistency and process errors are expected
// and logged quietly with their message passed through; system errors are
// logged loudly and replaced with a generic message.
func (h *Handler) replyForError(err error, req *api.Request) *api.Reply {
	switch interfaces.KindOf(err) {
	case interfaces.ProcessError:
		h.log.Debug("request cannot proceed", "err", err, "sn", req.SN, "sid", req.SessionID())
		return &api.Reply{Status: api.StatusFail, Message: interfaces.ErrorMessage(err)}
	case interfaces.ConsistencyError:
		h.log.Debug("request failure", "err", err, "sn", req.SN)
		return &api.Reply{Status: api.StatusError, Message: interfaces.ErrorMessage(err)}
	default:
		metrics.SystemErrorsTotal.Inc()
		h.log.Error("internal error", "err", err, "sn", req.SN, "sid", req.SessionID())
		return &api.Reply{Status: api.StatusError, Message: genericErrorMessage}
	}
}

// remoteAddr extracts the client address the rate limiter keys on.
func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
