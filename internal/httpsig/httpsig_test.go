package httpsig

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyID = "https://a.example/users/alice#main-key"

func newRSAKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemStr, err := EncodePublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, pemStr
}

func newDelivery(t *testing.T, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "https://b.example/inbox", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	return req
}

func TestHasSignature(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/inbox", nil)
	assert.False(t, HasSignature(req))

	req.Header.Set("Signature", `keyId="x"`)
	assert.True(t, HasSignature(req))

	req = httptest.NewRequest(http.MethodPost, "/inbox", nil)
	req.Header.Set("Authorization", "Bearer token")
	assert.True(t, HasSignature(req))
}

func TestSignParseVerify_RSA(t *testing.T) {
	key, pubPem := newRSAKey(t)
	body := []byte(`{"type":"Create","actor":"https://a.example/users/alice"}`)

	for _, scheme := range []Scheme{SchemeSignature, SchemeAuthorization} {
		t.Run(string(scheme), func(t *testing.T) {
			req := newDelivery(t, body)
			require.NoError(t, Sign(req, body, testKeyID, key, scheme))

			h, err := Parse(req)
			require.NoError(t, err)
			assert.Equal(t, testKeyID, h.KeyID)
			assert.Equal(t, scheme, h.Scheme)
			assert.Contains(t, h.Headers, "(request-target)")
			assert.Contains(t, h.Headers, "digest")
			assert.NotEmpty(t, h.Signature)

			ok, err := Verify(h, pubPem)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestVerify_Ed25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pubPem, err := EncodePublicKey(pub)
	require.NoError(t, err)

	body := []byte(`{"type":"Like"}`)
	req := newDelivery(t, body)
	require.NoError(t, Sign(req, body, testKeyID, priv, SchemeSignature))

	h, err := Parse(req)
	require.NoError(t, err)

	ok, err := Verify(h, pubPem)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_Mismatch(t *testing.T) {
	key, _ := newRSAKey(t)
	_, otherPem := newRSAKey(t)
	body := []byte(`{"type":"Create"}`)

	t.Run("wrong key", func(t *testing.T) {
		req := newDelivery(t, body)
		require.NoError(t, Sign(req, body, testKeyID, key, SchemeSignature))

		h, err := Parse(req)
		require.NoError(t, err)

		ok, err := Verify(h, otherPem)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("tampered date", func(t *testing.T) {
		pubPem, err := EncodePublicKey(&key.PublicKey)
		require.NoError(t, err)

		req := newDelivery(t, body)
		require.NoError(t, Sign(req, body, testKeyID, key, SchemeSignature))
		req.Header.Set("Date", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))

		h, err := Parse(req)
		require.NoError(t, err)

		ok, err := Verify(h, pubPem)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestVerify_BadKeys(t *testing.T) {
	key, _ := newRSAKey(t)
	body := []byte(`{}`)
	req := newDelivery(t, body)
	require.NoError(t, Sign(req, body, testKeyID, key, SchemeSignature))
	h, err := Parse(req)
	require.NoError(t, err)

	t.Run("not PEM", func(t *testing.T) {
		_, err := Verify(h, "not a key")
		assert.True(t, errors.Is(err, ErrUnsupportedKey))
	})

	t.Run("wrong PEM type", func(t *testing.T) {
		block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1, 2, 3}})
		_, err := Verify(h, string(block))
		assert.True(t, errors.Is(err, ErrUnsupportedKey))
	})

	t.Run("PKCS1 RSA key is accepted", func(t *testing.T) {
		block := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)})
		ok, err := Verify(h, string(block))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("header not from Parse", func(t *testing.T) {
		_, err := Verify(&Header{KeyID: testKeyID}, "")
		assert.True(t, errors.Is(err, ErrMalformedHeader))
	})
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   error
	}{
		{name: "no header", want: ErrNoSignature},
		{name: "bearer authorization", header: "Authorization", value: "Bearer abc", want: ErrNoSignature},
		{name: "missing keyId", header: "Signature", value: `algorithm="rsa-sha256",signature="YWJj"`, want: ErrMalformedHeader},
		{name: "missing signature", header: "Signature", value: `keyId="k",algorithm="rsa-sha256"`, want: ErrMalformedHeader},
		{name: "signature not base64", header: "Signature", value: `keyId="k",signature="%%%"`, want: ErrMalformedHeader},
		{name: "unterminated quote", header: "Signature", value: `keyId="k`, want: ErrMalformedHeader},
		{name: "garbage", header: "Signature", value: `nonsense`, want: ErrMalformedHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/inbox", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			_, err := Parse(req)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestParseParams(t *testing.T) {
	params, err := parseParams(`keyId="https://a.example/users/alice#main-key", algorithm="hs2019",created=1402170695, headers="(request-target) host date",signature="YWJj"`)
	require.NoError(t, err)

	assert.Equal(t, "https://a.example/users/alice#main-key", params["keyId"])
	assert.Equal(t, "hs2019", params["algorithm"])
	assert.Equal(t, "1402170695", params["created"])
	assert.Equal(t, "(request-target) host date", params["headers"])
	assert.Equal(t, "YWJj", params["signature"])
}

func TestParsePrivateKey(t *testing.T) {
	key, _ := newRSAKey(t)

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	parsed, err := ParsePrivateKey(pkcs1)
	require.NoError(t, err)
	assert.IsType(t, &rsa.PrivateKey{}, parsed)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	parsed, err = ParsePrivateKey(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	require.NoError(t, err)
	assert.IsType(t, &rsa.PrivateKey{}, parsed)

	_, err = ParsePrivateKey([]byte("nope"))
	assert.Error(t, err)
}

func TestSign_RequiresDate(t *testing.T) {
	key, _ := newRSAKey(t)
	req := httptest.NewRequest(http.MethodPost, "/inbox", nil)
	assert.Error(t, Sign(req, nil, testKeyID, key, SchemeSignature))
}
