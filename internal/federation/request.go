// file: internal/federation/request.go

package federation

import (
	"fmt"
	"net/http"

	"fedgate/internal/activity"
)

// InboundRequest is one delivery under evaluation. It is read-only to the
// authenticator.
type InboundRequest struct {
	Request  *http.Request
	Body     []byte
	Activity *activity.Activity
}

// NewInboundRequest decodes body as an activity. The body must already have
// been read from r.
func NewInboundRequest(r *http.Request, body []byte) (*InboundRequest, error) {
	act, err := activity.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("invalid activity: %w", err)
	}
	return &InboundRequest{Request: r, Body: body, Activity: act}, nil
}

func (r *InboundRequest) activityType() string {
	if r.Activity == nil {
		return ""
	}
	return r.Activity.Type
}

// Verification is the result of one Authenticate call
type Verification struct {
	Outcome Outcome
	// Path lists the states visited, starting with StateStart
	Path  []State
	KeyID string
	// Actor is the signer, or the claimed actor on the unsigned path, when
	// resolution succeeded
	Actor *activity.Actor
	Err   error
}

// Allowed reports whether the delivery may be processed
func (v Verification) Allowed() bool {
	return v.Outcome == OutcomeAllow
}

// Final returns the last state reached
func (v Verification) Final() State {
	if len(v.Path) == 0 {
		return StateStart
	}
	return v.Path[len(v.Path)-1]
}
