package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the Meta webhook signature
const SignatureHeader = "X-Hub-Signature-256"

// VerifyMetaSignature checks "sha256=<hex>" against HMAC-SHA256(body, appSecret)
// in constant time. An empty secret never verifies.
func VerifyMetaSignature(appSecret, header string, body []byte) bool {
	if appSecret == "" || header == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// SignMeta returns the X-Hub-Signature-256 value for a body
func SignMeta(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
