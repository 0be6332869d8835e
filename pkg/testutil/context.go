package testutil

import (
	"net/http"
	"time"

	"identityvault/pkg/requestcontext"
)

// WithRequestTime pins requestcontext.Now for the request, so handlers that
// stamp firstActive produce deterministic output.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
