// file: internal/activity/actor.go

package activity

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Actor is a resolved federated identity. An actor without a PublicKey has
// never published a signing key and is not required to sign.
type Actor struct {
	ID                string     `json:"id"`
	Type              string     `json:"type,omitempty"`
	PreferredUsername string     `json:"preferredUsername,omitempty"`
	Inbox             string     `json:"inbox,omitempty"`
	PublicKey         *PublicKey `json:"publicKey,omitempty"`

	// Set when the document is a standalone key rather than an actor
	Owner        string `json:"owner,omitempty"`
	PublicKeyPem string `json:"publicKeyPem,omitempty"`
}

// PublicKey is the security vocabulary key object embedded in an actor
type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner,omitempty"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// HasKey reports whether the actor publishes a signing key
func (a *Actor) HasKey() bool {
	return a != nil && a.PublicKey != nil && a.PublicKey.PublicKeyPem != ""
}

// IsKeyDocument reports whether the document is a bare key whose owner has
// to be fetched separately.
func (a *Actor) IsKeyDocument() bool {
	return a != nil && a.Owner != "" && a.PublicKeyPem != ""
}

// KeyPEM returns the PEM of the actor's key, or "" if there is none
func (a *Actor) KeyPEM() string {
	if !a.HasKey() {
		return ""
	}
	return a.PublicKey.PublicKeyPem
}

// DecodeActor parses an actor document
func DecodeActor(data []byte) (*Actor, error) {
	var a Actor
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode actor: %w", err)
	}
	if a.ID == "" {
		return nil, fmt.Errorf("actor document has no id")
	}
	return &a, nil
}

// EncodeActor serializes an actor for caching
func EncodeActor(a *Actor) ([]byte, error) {
	return json.Marshal(a)
}
