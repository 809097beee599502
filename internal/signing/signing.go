// Package signing builds outbound request headers and HMAC signatures
// for webhook deliveries.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/vantagecrm/hookd/internal/models"
)

const (
	userAgent        = "VantageCRM-Hookd/1.0"
	SignatureHeader  = "X-Webhook-Signature"
	defaultKeyHeader = "X-API-Key"
)

// ErrMissingSecret is returned when an hmac webhook has no secret
// configured. The attempt fails terminally; it is never retried.
var ErrMissingSecret = errors.New("hmac auth requires a secret")

// Sign computes the hex HMAC-SHA256 of body under secret, in the wire
// format carried by X-Webhook-Signature.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}

// Verify checks a signature produced by Sign in constant time.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// BuildHeaders assembles the outbound header set for one delivery.
// Order is significant: standard headers first, then the webhook's custom
// headers, then the auth header last so it always wins on collision.
func BuildHeaders(wh *models.Webhook, eventName string, body []byte) (map[string]string, error) {
	headers := map[string]string{
		"Content-Type":    "application/json",
		"User-Agent":      userAgent,
		"X-Webhook-Event": eventName,
		"X-Webhook-ID":    wh.ID,
	}

	for k, v := range wh.Headers {
		headers[k] = v
	}

	switch wh.AuthType {
	case models.AuthNone, "":
	case models.AuthBasic:
		user := wh.AuthConfig["username"]
		pass := wh.AuthConfig["password"]
		cred := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		headers["Authorization"] = "Basic " + cred
	case models.AuthBearer:
		headers["Authorization"] = "Bearer " + wh.AuthConfig["token"]
	case models.AuthAPIKey:
		name := wh.AuthConfig["header"]
		if name == "" {
			name = defaultKeyHeader
		}
		headers[name] = wh.AuthConfig["key"]
	case models.AuthHMAC:
		secret := wh.AuthConfig["secret"]
		if secret == "" {
			return nil, ErrMissingSecret
		}
		headers[SignatureHeader] = Sign(secret, body)
	default:
		return nil, fmt.Errorf("unsupported auth type: %s", wh.AuthType)
	}

	return headers, nil
}
