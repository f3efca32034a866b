// file: internal/httpsig/verify.go

package httpsig

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gofed "github.com/go-fed/httpsig"
)

// ErrUnsupportedKey is returned when the signer's PEM does not hold a key
// type we can verify with.
var ErrUnsupportedKey = errors.New("httpsig: unsupported public key")

// Verify checks the signature against the signer's PEM encoded public key.
// A mismatch is reported as false with a nil error. An error means the key
// itself could not be used.
func Verify(h *Header, publicKeyPem string) (bool, error) {
	if h == nil || h.verifier == nil {
		return false, fmt.Errorf("%w: header was not produced by Parse", ErrMalformedHeader)
	}

	key, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return false, err
	}

	algo, err := algorithmFor(key, h.Algorithm)
	if err != nil {
		return false, err
	}

	if err := h.verifier.Verify(key, algo); err != nil {
		return false, nil
	}
	return true, nil
}

// ParsePublicKey decodes a PKIX or PKCS#1 PEM block
func ParsePublicKey(publicKeyPem string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPem))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrUnsupportedKey)
	}

	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
		}
		return key, nil
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrUnsupportedKey, block.Type)
	}
}

// algorithmFor maps the key type and the declared algorithm to the
// algorithm the signature is checked with. "hs2019" and an absent
// algorithm are resolved from the key.
func algorithmFor(key crypto.PublicKey, declared string) (gofed.Algorithm, error) {
	declared = strings.ToLower(declared)

	switch key.(type) {
	case *rsa.PublicKey:
		if declared == string(gofed.RSA_SHA512) {
			return gofed.RSA_SHA512, nil
		}
		return gofed.RSA_SHA256, nil
	case ed25519.PublicKey:
		return gofed.ED25519, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}

// Sign adds a Signature header to the request using draft-cavage with
// rsa-sha256 over (request-target), host, date and digest. It is used by
// the CLI to produce fixtures and by tests.
func Sign(r *http.Request, body []byte, keyID string, key crypto.PrivateKey, scheme Scheme) error {
	if r.Header.Get("Date") == "" {
		return fmt.Errorf("request has no Date header")
	}

	if r.Header.Get("Host") == "" && r.Host != "" {
		r.Header.Set("Host", r.Host)
	}
	if body == nil {
		body = []byte{}
	}

	gofedScheme := gofed.Signature
	if scheme == SchemeAuthorization {
		gofedScheme = gofed.Authorization
	}

	prefs := []gofed.Algorithm{gofed.RSA_SHA256}
	if _, ok := key.(ed25519.PrivateKey); ok {
		prefs = []gofed.Algorithm{gofed.ED25519}
	}

	signer, _, err := gofed.NewSigner(
		prefs,
		gofed.DigestSha256,
		[]string{gofed.RequestTarget, "host", "date", "digest"},
		gofedScheme,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	if err := signer.SignRequest(key, keyID, r, body); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	return nil
}
