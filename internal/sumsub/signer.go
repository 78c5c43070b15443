package sumsub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// ErrNotConfigured is returned before any network call is attempted when the
// app token or secret key is missing. An unsigned or mis-signed request must
// never leave the process.
var ErrNotConfigured = errors.New("sumsub: app token or secret key not configured")

// Signer produces the authentication headers the provider requires on every
// outbound call and checks the digest it puts on inbound webhooks. Both
// directions share the same secret key.
type Signer struct {
	appToken  string
	secretKey string

	timeNow func() time.Time
}

func NewSigner(appToken, secretKey string) *Signer {
	return &Signer{
		appToken:  appToken,
		secretKey: secretKey,
		timeNow:   time.Now,
	}
}

// Sign computes HMAC-SHA256 over timestamp || method || path || body, where
// body must be the exact bytes that will go on the wire. A fresh timestamp is
// taken on every call, so signatures cannot be reused across requests.
func (s *Signer) Sign(method, path string, body []byte) (http.Header, error) {
	if s.appToken == "" || s.secretKey == "" {
		return nil, ErrNotConfigured
	}

	timestamp := strconv.FormatInt(s.timeNow().Unix(), 10)

	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(timestamp + method + path))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	headers := make(http.Header)
	headers.Set("X-App-Token", s.appToken)
	headers.Set("X-App-Access-Sig", signature)
	headers.Set("X-App-Access-Ts", timestamp)

	if len(body) > 0 {
		headers.Set("Content-Type", "application/json")
	}

	return headers, nil
}

// VerifyWebhook checks an inbound payload digest against the raw body bytes
// as received, before any JSON parsing. Re-serializing a parsed body would
// break the digest on key order alone. Returns false when the secret is not
// configured; the caller treats false as "reject".
func (s *Signer) VerifyWebhook(rawBody []byte, signature string) bool {
	if s.secretKey == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write(rawBody)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(computed), []byte(signature))
}
