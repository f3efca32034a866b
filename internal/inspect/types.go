// file: internal/inspect/types.go

package inspect

import "fedgate/internal/activity"

// Fixture describes one inbound delivery to authenticate offline
type Fixture struct {
	Method      string            `yaml:"method"`
	Host        string            `yaml:"host"`
	Path        string            `yaml:"path"`
	Environment string            `yaml:"environment"`
	GateEnabled *bool             `yaml:"gateEnabled,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	Body        string            `yaml:"body"`
}

// ActorMocks stands in for the remote servers the resolver would contact.
// Statuses maps an IRI to the HTTP status its origin answers with.
type ActorMocks struct {
	Actors   []MockActor    `yaml:"actors"`
	Statuses map[string]int `yaml:"statuses,omitempty"`
}

// MockActor is an actor document. The key PEM may be inline or read from
// PublicKeyFile, relative to the mocks file.
type MockActor struct {
	ID        string         `yaml:"id"`
	Type      string         `yaml:"type,omitempty"`
	PublicKey *MockPublicKey `yaml:"publicKey,omitempty"`
}

type MockPublicKey struct {
	ID            string `yaml:"id"`
	PublicKeyPem  string `yaml:"publicKeyPem,omitempty"`
	PublicKeyFile string `yaml:"publicKeyFile,omitempty"`
}

func (m MockActor) actor() *activity.Actor {
	a := &activity.Actor{ID: m.ID, Type: m.Type}
	if m.PublicKey != nil {
		a.PublicKey = &activity.PublicKey{
			ID:           m.PublicKey.ID,
			Owner:        m.ID,
			PublicKeyPem: m.PublicKey.PublicKeyPem,
		}
	}
	return a
}

// Report is the result of one offline check
type Report struct {
	Outcome       string   `json:"outcome"`
	StatusCode    int      `json:"statusCode"`
	Body          string   `json:"body,omitempty"`
	Path          []string `json:"path,omitempty"`
	KeyID         string   `json:"keyId,omitempty"`
	Actor         string   `json:"actor,omitempty"`
	Error         string   `json:"error,omitempty"`
	ResolverCalls int      `json:"resolverCalls"`
	DurationMs    int64    `json:"duration_ms"`
}
