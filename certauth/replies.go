package certauth

import (
	"fmt"

	"github.com/routerlabs/device-cert-backend/api"
)

// Delays, in seconds, the client is told to wait before its next request.
const (
	delayGetSessionExists = 10
	delayAuth             = 10
)

func replyAuthenticate(sid, nonce string) *api.Reply {
	return &api.Reply{
		Status:  api.StatusAuthenticate,
		SID:     sid,
		Nonce:   nonce,
		Message: "Authenticate yourself by sending digest and auth_type in 'auth' request",
	}
}

func replyWait() *api.Reply {
	return &api.Reply{
		Status: api.StatusWait,
		Delay:  delayGetSessionExists,
		Message: fmt.Sprintf("Authentication still running, wait for %d sec before sending"+
			" another 'get' request", delayGetSessionExists),
	}
}

func replyAccepted() *api.Reply {
	return &api.Reply{
		Status: api.StatusAccepted,
		Delay:  delayAuth,
		Message: fmt.Sprintf("Authentication process started, wait for %d sec before"+
			" sending next 'get' request", delayAuth),
	}
}

func replyOKCert(certBytes []byte) *api.Reply {
	return &api.Reply{
		Status:  api.StatusOK,
		Cert:    string(certBytes),
		Message: "Authentication successful, requested certificate provided",
	}
}

func replyOKSecret(secret []byte) *api.Reply {
	return &api.Reply{
		Status:  api.StatusOK,
		Secret:  string(secret),
		Message: "Authentication successful, requested secret provided",
	}
}
