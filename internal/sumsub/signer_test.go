package sumsub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func computeHMAC(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSignMatchesIndependentComputation(t *testing.T) {
	signer := NewSigner("test-app-token", "test-secret")
	signer.timeNow = func() time.Time { return time.Unix(1700000000, 0) }

	body := []byte(`{"externalUserId":"user-1"}`)
	headers, err := signer.Sign("POST", "/resources/applicants?levelName=id-and-liveness", body)
	require.NoError(t, err)

	require.Equal(t, "test-app-token", headers.Get("X-App-Token"))
	require.Equal(t, "1700000000", headers.Get("X-App-Access-Ts"))
	require.Equal(t, "application/json", headers.Get("Content-Type"))

	expected := computeHMAC("test-secret", "1700000000POST/resources/applicants?levelName=id-and-liveness"+string(body))
	require.Equal(t, expected, headers.Get("X-App-Access-Sig"))
}

func TestSignOmitsContentTypeWithoutBody(t *testing.T) {
	signer := NewSigner("test-app-token", "test-secret")
	signer.timeNow = func() time.Time { return time.Unix(1700000000, 0) }

	headers, err := signer.Sign("GET", "/resources/applicants/abc123", nil)
	require.NoError(t, err)

	require.Empty(t, headers.Get("Content-Type"))

	expected := computeHMAC("test-secret", "1700000000GET/resources/applicants/abc123")
	require.Equal(t, expected, headers.Get("X-App-Access-Sig"))
}

func TestSignChangesWithEveryInput(t *testing.T) {
	signer := NewSigner("test-app-token", "test-secret")
	signer.timeNow = func() time.Time { return time.Unix(1700000000, 0) }

	base, err := signer.Sign("POST", "/resources/applicants", []byte(`{}`))
	require.NoError(t, err)

	variants := []struct {
		name   string
		method string
		path   string
		body   []byte
	}{
		{"method", "GET", "/resources/applicants", []byte(`{}`)},
		{"path", "POST", "/resources/accessTokens", []byte(`{}`)},
		{"body", "POST", "/resources/applicants", []byte(`{"a":1}`)},
	}

	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			headers, err := signer.Sign(v.method, v.path, v.body)
			require.NoError(t, err)
			require.NotEqual(t, base.Get("X-App-Access-Sig"), headers.Get("X-App-Access-Sig"))
		})
	}

	// a new timestamp means a new signature for the same request
	signer.timeNow = func() time.Time { return time.Unix(1700000001, 0) }
	headers, err := signer.Sign("POST", "/resources/applicants", []byte(`{}`))
	require.NoError(t, err)
	require.NotEqual(t, base.Get("X-App-Access-Sig"), headers.Get("X-App-Access-Sig"))
}

func TestSignFailsClosedWithoutCredentials(t *testing.T) {
	for _, signer := range []*Signer{
		NewSigner("", "test-secret"),
		NewSigner("test-app-token", ""),
		NewSigner("", ""),
	} {
		headers, err := signer.Sign("GET", "/resources/levels", nil)
		require.ErrorIs(t, err, ErrNotConfigured)
		require.Nil(t, headers)
	}
}

func TestVerifyWebhook(t *testing.T) {
	signer := NewSigner("test-app-token", "test-secret")

	body := []byte(`{"type":"applicantReviewed","applicantId":"abc123"}`)
	signature := computeHMAC("test-secret", string(body))

	require.True(t, signer.VerifyWebhook(body, signature))

	// any bit flip in the body breaks the digest
	tampered := append([]byte(nil), body...)
	tampered[0] ^= 0x01
	require.False(t, signer.VerifyWebhook(tampered, signature))

	// any change to the signature breaks it too
	flipped := []byte(signature)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	require.False(t, signer.VerifyWebhook(body, string(flipped)))
	require.False(t, signer.VerifyWebhook(body, ""))
}

func TestVerifyWebhookFailsClosedWithoutSecret(t *testing.T) {
	signer := NewSigner("test-app-token", "")

	body := []byte(`{"type":"applicantPending","applicantId":"abc123"}`)
	require.False(t, signer.VerifyWebhook(body, computeHMAC("", string(body))))
}
