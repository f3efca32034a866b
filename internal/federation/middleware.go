// file: internal/federation/middleware.go

package federation

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"fedgate/internal/logger"
	"fedgate/internal/metrics"
)

// DefaultMaxBodyBytes bounds an inbound activity when no limit is configured
const DefaultMaxBodyBytes = 1 << 20

// Gate rejects every delivery with 405 unless the deployment is in open
// mode. A disabled gate lets everything through.
func Gate(enabled bool, mode ModeGate, log *logger.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mode.IsOpen() {
				next.ServeHTTP(w, r)
				return
			}
			log.Debug("inbound delivery disabled in this deployment",
				"path", r.URL.Path,
				"remote", r.RemoteAddr)
			m.IncSignatureVerification(OutcomeDisabled.String())
			writeOutcome(w, OutcomeDisabled)
		})
	}
}

// Middleware authenticates inbound deliveries before next sees them.
// Allowed requests reach next with the body restored and the verification
// attached to the context. Every other outcome is answered here.
func Middleware(auth *Authenticator, maxBodyBytes int64, log *logger.Logger) func(http.Handler) http.Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
					return
				}
				log.Warn("failed to read inbound body", "error", err, "remote", r.RemoteAddr)
				http.Error(w, "Failed to read request body", http.StatusBadRequest)
				return
			}

			req, err := NewInboundRequest(r, body)
			if err != nil {
				log.Debug("rejecting undecodable activity", "error", err, "remote", r.RemoteAddr)
				http.Error(w, "Invalid activity", http.StatusBadRequest)
				return
			}

			v := auth.Authenticate(r.Context(), req)
			if !v.Allowed() {
				writeOutcome(w, v.Outcome)
				return
			}

			r = r.WithContext(WithVerification(r.Context(), req, v))
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

func writeOutcome(w http.ResponseWriter, o Outcome) {
	body := o.Body()
	if body != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(o.StatusCode())
	if body != "" {
		_, _ = w.Write([]byte(body))
	}
}
