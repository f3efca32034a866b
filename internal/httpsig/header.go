// file: internal/httpsig/header.go

// Package httpsig parses and verifies draft-cavage HTTP signatures as used
// for ActivityPub server-to-server delivery. Canonicalization of the signed
// string is delegated to github.com/go-fed/httpsig.
package httpsig

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gofed "github.com/go-fed/httpsig"
)

// Scheme names the header a signature was carried in
type Scheme string

const (
	SchemeSignature     Scheme = "Signature"
	SchemeAuthorization Scheme = "Authorization"
)

const authorizationPrefix = "Signature "

var (
	// ErrNoSignature is returned when neither the Signature nor the
	// Authorization header carries a signature.
	ErrNoSignature = errors.New("httpsig: no signature header")

	// ErrMalformedHeader is returned when the signature parameters cannot
	// be parsed or required parameters are missing.
	ErrMalformedHeader = errors.New("httpsig: malformed signature header")
)

// Header is the parsed form of a signature header. It is immutable and
// scoped to a single verification attempt.
type Header struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature []byte
	Scheme    Scheme

	verifier gofed.Verifier
}

// HasSignature reports whether the request carries either signature header
func HasSignature(r *http.Request) bool {
	return r.Header.Get("Authorization") != "" || r.Header.Get("Signature") != ""
}

// Parse extracts the signature parameters from a request. The Signature
// header takes precedence over Authorization.
func Parse(r *http.Request) (*Header, error) {
	raw, scheme := signatureValue(r)
	if raw == "" {
		return nil, ErrNoSignature
	}

	params, err := parseParams(raw)
	if err != nil {
		return nil, err
	}

	h := &Header{
		KeyID:     params["keyId"],
		Algorithm: params["algorithm"],
		Scheme:    scheme,
	}
	if h.KeyID == "" {
		return nil, fmt.Errorf("%w: missing keyId", ErrMalformedHeader)
	}

	sig := params["signature"]
	if sig == "" {
		return nil, fmt.Errorf("%w: missing signature", ErrMalformedHeader)
	}
	h.Signature, err = base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: signature is not base64: %v", ErrMalformedHeader, err)
	}

	// Per draft-cavage, "date" is signed when the headers parameter is absent
	if hs := params["headers"]; hs != "" {
		h.Headers = strings.Fields(strings.ToLower(hs))
	} else {
		h.Headers = []string{"date"}
	}

	h.verifier, err = gofed.NewVerifier(withHostHeader(r))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	return h, nil
}

// withHostHeader returns a copy of the request whose header map carries
// Host. net/http moves it to r.Host on inbound requests, but the signed
// string is built from the header map.
func withHostHeader(r *http.Request) *http.Request {
	if r.Header.Get("Host") != "" || r.Host == "" {
		return r
	}
	clone := r.Clone(r.Context())
	clone.Header.Set("Host", r.Host)
	return clone
}

// signatureValue returns the raw parameter list and the scheme it came from
func signatureValue(r *http.Request) (string, Scheme) {
	if v := r.Header.Get("Signature"); v != "" {
		return v, SchemeSignature
	}
	if v := r.Header.Get("Authorization"); v != "" {
		if strings.HasPrefix(v, authorizationPrefix) {
			return strings.TrimPrefix(v, authorizationPrefix), SchemeAuthorization
		}
		return "", SchemeAuthorization
	}
	return "", ""
}

// parseParams splits a comma separated list of name="value" pairs. Values
// may contain commas, so the split happens on the quoting.
func parseParams(raw string) (map[string]string, error) {
	params := make(map[string]string)
	rest := strings.TrimSpace(raw)

	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("%w: expected name=value near %q", ErrMalformedHeader, rest)
		}
		name := strings.TrimSpace(rest[:eq])
		rest = strings.TrimSpace(rest[eq+1:])

		var value string
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated value for %s", ErrMalformedHeader, name)
			}
			value = rest[1 : end+1]
			rest = rest[end+2:]
		} else {
			// created and expires are bare integers
			end := strings.IndexByte(rest, ',')
			if end < 0 {
				end = len(rest)
			}
			value = strings.TrimSpace(rest[:end])
			rest = rest[end:]
		}
		params[name] = value

		rest = strings.TrimSpace(rest)
		if strings.HasPrefix(rest, ",") {
			rest = strings.TrimSpace(rest[1:])
		} else if rest != "" {
			return nil, fmt.Errorf("%w: expected ',' after %s", ErrMalformedHeader, name)
		}
	}

	return params, nil
}
