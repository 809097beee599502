package signing

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagecrm/hookd/internal/models"
)

func TestSign_Deterministic(t *testing.T) {
	body := []byte(`{"event":"contact.created","data":{"id":"ct_1"}}`)

	sig1 := Sign("whsec_abc", body)
	sig2 := Sign("whsec_abc", body)
	assert.Equal(t, sig1, sig2)
	assert.True(t, strings.HasPrefix(sig1, "sha256="))
	assert.Len(t, sig1, len("sha256=")+64)
}

func TestSign_ChangesWithBodyAndSecret(t *testing.T) {
	body := []byte(`{"a":1}`)

	assert.NotEqual(t, Sign("secret", body), Sign("secret", []byte(`{"a":2}`)))
	assert.NotEqual(t, Sign("secret", body), Sign("other", body))
}

func TestVerify(t *testing.T) {
	body := []byte(`{"event":"lead.converted"}`)
	sig := Sign("whsec_xyz", body)

	assert.True(t, Verify("whsec_xyz", body, sig))
	assert.False(t, Verify("wrong", body, sig))
	assert.False(t, Verify("whsec_xyz", []byte("tampered"), sig))
}

func TestBuildHeaders_Standard(t *testing.T) {
	wh := &models.Webhook{ID: "wh_1", AuthType: models.AuthNone}

	headers, err := BuildHeaders(wh, "contact.created", []byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, "application/json", headers["Content-Type"])
	assert.Equal(t, "VantageCRM-Hookd/1.0", headers["User-Agent"])
	assert.Equal(t, "contact.created", headers["X-Webhook-Event"])
	assert.Equal(t, "wh_1", headers["X-Webhook-ID"])
}

func TestBuildHeaders_CustomHeadersKept(t *testing.T) {
	wh := &models.Webhook{
		ID:      "wh_1",
		Headers: map[string]string{"X-Tenant": "acme"},
	}

	headers, err := BuildHeaders(wh, "task.created", []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "acme", headers["X-Tenant"])
}

func TestBuildHeaders_AuthWinsCollision(t *testing.T) {
	wh := &models.Webhook{
		ID:         "wh_1",
		AuthType:   models.AuthBearer,
		AuthConfig: map[string]string{"token": "tok_real"},
		Headers:    map[string]string{"Authorization": "Bearer tok_custom"},
	}

	headers, err := BuildHeaders(wh, "task.created", []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok_real", headers["Authorization"])
}

func TestBuildHeaders_Basic(t *testing.T) {
	wh := &models.Webhook{
		ID:         "wh_1",
		AuthType:   models.AuthBasic,
		AuthConfig: map[string]string{"username": "u", "password": "p"},
	}

	headers, err := BuildHeaders(wh, "call.logged", []byte("{}"))
	require.NoError(t, err)

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("u:p"))
	assert.Equal(t, want, headers["Authorization"])
}

func TestBuildHeaders_APIKeyDefaultHeader(t *testing.T) {
	wh := &models.Webhook{
		ID:         "wh_1",
		AuthType:   models.AuthAPIKey,
		AuthConfig: map[string]string{"key": "k123"},
	}

	headers, err := BuildHeaders(wh, "email.sent", []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "k123", headers["X-API-Key"])

	wh.AuthConfig["header"] = "X-Custom-Key"
	headers, err = BuildHeaders(wh, "email.sent", []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, "k123", headers["X-Custom-Key"])
}

func TestBuildHeaders_HMAC(t *testing.T) {
	body := []byte(`{"id":"ct_9"}`)
	wh := &models.Webhook{
		ID:         "wh_1",
		AuthType:   models.AuthHMAC,
		AuthConfig: map[string]string{"secret": "whsec_s"},
	}

	headers, err := BuildHeaders(wh, "contact.updated", body)
	require.NoError(t, err)
	assert.Equal(t, Sign("whsec_s", body), headers[SignatureHeader])
}

func TestBuildHeaders_HMACMissingSecret(t *testing.T) {
	wh := &models.Webhook{ID: "wh_1", AuthType: models.AuthHMAC}

	_, err := BuildHeaders(wh, "contact.updated", []byte("{}"))
	assert.ErrorIs(t, err, ErrMissingSecret)
}
