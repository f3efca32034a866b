// file: internal/federation/policy.go

package federation

import "fedgate/internal/activity"

// UnsignedDecision is the verdict for a delivery that carries no signature
type UnsignedDecision int

const (
	// UnsignedExempt: the actor never published a key and cannot be held to signing
	UnsignedExempt UnsignedDecision = iota
	// UnsignedRequireSignature: the actor publishes a key, so the delivery must be signed
	UnsignedRequireSignature
	// UnsignedDevBypass: the actor publishes a key but open mode skips the check.
	// This exists for local testing only and is not an exemption rule.
	UnsignedDevBypass
)

func (d UnsignedDecision) String() string {
	switch d {
	case UnsignedExempt:
		return "exempt"
	case UnsignedRequireSignature:
		return "require_signature"
	case UnsignedDevBypass:
		return "dev_bypass"
	default:
		return "unknown"
	}
}

// DecideUnsigned applies the unsigned delivery rule to the resolved
// claimed actor. Any publicKey object counts, even one with an empty PEM.
func DecideUnsigned(actor *activity.Actor, open bool) UnsignedDecision {
	if actor == nil || actor.PublicKey == nil {
		return UnsignedExempt
	}
	if open {
		return UnsignedDevBypass
	}
	return UnsignedRequireSignature
}
