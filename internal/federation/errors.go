// file: internal/federation/errors.go

package federation

import "errors"

// Every Verification.Err wraps exactly one of these, plus the underlying
// cause where there is one.
var (
	ErrDisabled         = errors.New("federation: inbound delivery disabled in this deployment")
	ErrMissingSignature = errors.New("federation: missing http signature")
	ErrInvalidSignature = errors.New("federation: invalid http signature")
	ErrTombstone        = errors.New("federation: delete from a gone actor")
	ErrInternal         = errors.New("federation: authentication failed")
)

// ErrorFor returns the sentinel error matching an outcome, or nil for Allow
func ErrorFor(o Outcome) error {
	switch o {
	case OutcomeDisabled:
		return ErrDisabled
	case OutcomeMissingSignature:
		return ErrMissingSignature
	case OutcomeInvalidSignature:
		return ErrInvalidSignature
	case OutcomeTombstone:
		return ErrTombstone
	case OutcomeInternalError:
		return ErrInternal
	default:
		return nil
	}
}
