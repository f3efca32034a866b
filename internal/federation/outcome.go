// file: internal/federation/outcome.go

package federation

import "net/http"

// Outcome is the single result of authenticating one inbound delivery
type Outcome int

const (
	// OutcomeAllow passes the delivery on to processing
	OutcomeAllow Outcome = iota
	// OutcomeMissingSignature rejects an unsigned delivery from an actor that publishes a key
	OutcomeMissingSignature
	// OutcomeInvalidSignature rejects a signature that does not verify
	OutcomeInvalidSignature
	// OutcomeTombstone accepts, without processing, a Delete from a gone actor
	OutcomeTombstone
	// OutcomeInternalError reports a resolution, parsing or crypto failure
	OutcomeInternalError
	// OutcomeDisabled is produced by the deployment gate
	OutcomeDisabled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "allow"
	case OutcomeMissingSignature:
		return "missing_signature"
	case OutcomeInvalidSignature:
		return "invalid_signature"
	case OutcomeTombstone:
		return "tombstone"
	case OutcomeInternalError:
		return "internal_error"
	case OutcomeDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// StatusCode is the HTTP status the outcome is answered with. Allow
// returns 0 because the request continues to the next handler.
func (o Outcome) StatusCode() int {
	switch o {
	case OutcomeAllow:
		return 0
	case OutcomeMissingSignature, OutcomeInvalidSignature:
		return http.StatusBadRequest
	case OutcomeTombstone:
		return http.StatusOK
	case OutcomeDisabled:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// Body is the fixed response body for the outcome
func (o Outcome) Body() string {
	switch o {
	case OutcomeMissingSignature:
		return "Missing http signature"
	case OutcomeInvalidSignature:
		return "Invalid http signature"
	default:
		return ""
	}
}

// State is a step of the authentication state machine
type State int

const (
	StateStart State = iota
	StateNoSignature
	StateSignature
	StateResolved
	StateVerified
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateNoSignature:
		return "no_signature"
	case StateSignature:
		return "signature"
	case StateResolved:
		return "resolved"
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
