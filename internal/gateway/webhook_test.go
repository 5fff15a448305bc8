package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"payment.captured"}`)

	v := NewWebhookVerifier(secret)
	assert.NoError(t, v.Verify(body, sign(secret, body)))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"ch_1","order_id":"order_1","amount":1000}}}}`)
	signature := sign(secret, body)

	v := NewWebhookVerifier(secret)
	require.NoError(t, v.Verify(body, signature))

	// Any single byte flip must invalidate the original signature
	for i := range body {
		tampered := make([]byte, len(body))
		copy(tampered, body)
		tampered[i] ^= 0x01

		err := v.Verify(tampered, signature)
		assert.ErrorIs(t, err, ErrInvalidSignature, "byte %d", i)
	}
}

func TestVerifyRejectsMissingSignature(t *testing.T) {
	v := NewWebhookVerifier("whsec_test")
	assert.ErrorIs(t, v.Verify([]byte(`{}`), ""), ErrInvalidSignature)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	v := NewWebhookVerifier("whsec_test")
	assert.ErrorIs(t, v.Verify(body, sign("whsec_other", body)), ErrInvalidSignature)
}

func TestParseEventCapture(t *testing.T) {
	body := []byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": "ch_1",
			"order_id": "order_abc",
			"amount": 100000,
			"currency": "INR",
			"email": "guest@example.com",
			"notes": {"name": "Guest"}
		}}}
	}`)

	capture, failure, err := ParseEvent(body)
	require.NoError(t, err)
	require.Nil(t, failure)
	require.NotNil(t, capture)
	assert.Equal(t, "ch_1", capture.ChargeID)
	assert.Equal(t, "order_abc", capture.IntentID)
	assert.Equal(t, int64(100000), capture.Amount)
	assert.Equal(t, "INR", capture.Currency)
	assert.Equal(t, "Guest", capture.Notes["name"])
}

func TestParseEventFailure(t *testing.T) {
	body := []byte(`{
		"event": "payment.failed",
		"payload": {"payment": {"entity": {
			"id": "ch_2",
			"order_id": "order_abc",
			"error_description": "card declined"
		}}}
	}`)

	capture, failure, err := ParseEvent(body)
	require.NoError(t, err)
	require.Nil(t, capture)
	require.NotNil(t, failure)
	assert.Equal(t, "order_abc", failure.IntentID)
	assert.Equal(t, "card declined", failure.Reason)
}

func TestParseEventIgnoresOtherTypes(t *testing.T) {
	capture, failure, err := ParseEvent([]byte(`{"event":"refund.created"}`))
	require.NoError(t, err)
	assert.Nil(t, capture)
	assert.Nil(t, failure)
}

func TestParseEventRejectsCaptureWithoutIntent(t *testing.T) {
	body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"ch_1"}}}}`)
	_, _, err := ParseEvent(body)
	assert.Error(t, err)
}
