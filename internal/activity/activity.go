// file: internal/activity/activity.go

// Package activity holds the subset of the ActivityStreams vocabulary the
// gateway needs to authenticate a delivery: the activity envelope and the
// actor documents referenced from it.
package activity

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// TypeDelete is the activity type that may be accepted for an actor that
// no longer exists.
const TypeDelete = "Delete"

// Activity is the decoded envelope of an inbound delivery. Fields the
// gateway does not inspect are left in the raw body.
type Activity struct {
	Context interface{} `json:"@context,omitempty"`
	ID      string      `json:"id,omitempty"`
	Type    string      `json:"type"`
	Actor   Reference   `json:"actor"`
	Object  Reference   `json:"object,omitempty"`
}

// Decode parses an activity from a raw JSON body
func Decode(body []byte) (*Activity, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty activity body")
	}

	var act Activity
	if err := json.Unmarshal(body, &act); err != nil {
		return nil, fmt.Errorf("failed to decode activity: %w", err)
	}
	return &act, nil
}

// IsDelete reports whether the activity is a Delete
func (a *Activity) IsDelete() bool {
	return a != nil && a.Type == TypeDelete
}

// ActorFromActivity returns the reference to the actor that claims to have
// sent the activity. A nil activity yields an empty reference.
func ActorFromActivity(a *Activity) Reference {
	if a == nil {
		return Reference{}
	}
	return a.Actor
}

// Reference is a JSON-LD link that is either a bare IRI or an embedded
// object. Arrays are collapsed to their first element.
type Reference struct {
	IRI    string
	Object *Actor
}

// ID returns the identifier of the referenced object, whichever form it
// was given in.
func (r Reference) ID() string {
	if r.Object != nil && r.Object.ID != "" {
		return r.Object.ID
	}
	return r.IRI
}

// IsZero reports whether the reference is empty
func (r Reference) IsZero() bool {
	return r.IRI == "" && r.Object == nil
}

// IsEmbedded reports whether the reference carries an inline object
func (r Reference) IsEmbedded() bool {
	return r.Object != nil
}

// UnmarshalJSON accepts a string IRI, an object, or an array of either
func (r *Reference) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Reference{}
		return nil
	}

	switch data[0] {
	case '"':
		var iri string
		if err := json.Unmarshal(data, &iri); err != nil {
			return err
		}
		*r = Reference{IRI: iri}
		return nil
	case '{':
		var obj Actor
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*r = Reference{Object: &obj}
		return nil
	case '[':
		var items []Reference
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		if len(items) == 0 {
			*r = Reference{}
			return nil
		}
		*r = items[0]
		return nil
	default:
		return fmt.Errorf("unsupported reference value: %s", string(data))
	}
}

// MarshalJSON writes the reference back in the form it was read
func (r Reference) MarshalJSON() ([]byte, error) {
	if r.Object != nil {
		return json.Marshal(r.Object)
	}
	if r.IRI == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.IRI)
}

// StripFragment removes the fragment of an IRI. Key IDs are usually the
// actor IRI plus "#main-key".
func StripFragment(iri string) string {
	if i := strings.IndexByte(iri, '#'); i >= 0 {
		return iri[:i]
	}
	return iri
}
