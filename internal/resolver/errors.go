// file: internal/resolver/errors.go

package resolver

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned by a Store on a miss
	ErrNotFound = errors.New("resolver: actor not in store")

	// ErrEmptyReference is returned when the activity names no actor
	ErrEmptyReference = errors.New("resolver: empty actor reference")

	// ErrGone marks an actor that has been permanently removed
	ErrGone = errors.New("resolver: actor is gone")
)

// Error is returned for every failed resolution. StatusCode carries the
// remote HTTP status when the failure came from a fetch, and is zero for
// transport or decoding failures.
type Error struct {
	IRI        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("resolve %s: status %d: %v", e.IRI, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("resolve %s: status %d", e.IRI, e.StatusCode)
	default:
		return fmt.Sprintf("resolve %s: %v", e.IRI, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Gone reports whether the remote answered 410
func (e *Error) Gone() bool {
	return e.StatusCode == http.StatusGone
}

// IsGone reports whether err, or anything it wraps, is a resolution error
// for a permanently removed actor.
func IsGone(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Gone()
}

func goneError(iri string) *Error {
	return &Error{IRI: iri, StatusCode: http.StatusGone, Err: ErrGone}
}
