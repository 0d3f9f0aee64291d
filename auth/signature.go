package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"time"
)

// SignatureFreshness bounds how far a delivery timestamp may drift from the
// verifier's clock, in either direction. Bounds replay exposure.
const SignatureFreshness = 300 * time.Second

// VerifySignature checks a legacy shared-secret delivery signature. The
// signed material is "{timestamp}.{body}" over the raw, unparsed body bytes;
// comparison is constant-time.
func VerifySignature(secret string, body []byte, signature, timestamp string) error {
	if secret == "" {
		return ErrNotConfigured
	}
	if signature == "" || timestamp == "" {
		return ErrMissingHeader
	}

	// A timestamp that doesn't parse can never be fresh.
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrStaleRequest
	}
	drift := time.Now().Unix() - ts
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(SignatureFreshness/time.Second) {
		return ErrStaleRequest
	}

	expected := computeSignature(secret, body, timestamp)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// GenerateSignature produces the signature and timestamp headers for a body.
// A zero ts means "now". Used by test harnesses and outbound replay tooling;
// VerifySignature accepts its output within the freshness window.
func GenerateSignature(secret string, body []byte, ts int64) (signature, timestamp string) {
	if ts == 0 {
		ts = time.Now().Unix()
	}
	timestamp = strconv.FormatInt(ts, 10)
	return computeSignature(secret, body, timestamp), timestamp
}

func computeSignature(secret string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
