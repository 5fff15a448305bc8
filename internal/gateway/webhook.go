package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidSignature marks a webhook body whose HMAC digest does not match
// the gateway signature header.
var ErrInvalidSignature = errors.New("invalid webhook signature")

const eventPaymentCaptured = "payment.captured"
const eventPaymentFailed = "payment.failed"

// Capture is the normalized view of a verified capture event handed to the
// reconciliation engine. IntentID is the gateway-issued order/intent id the
// charge was made against.
type Capture struct {
	ChargeID string
	IntentID string
	Amount   int64
	Currency string
	Email    string
	Notes    map[string]string
}

// Failure is the normalized view of a verified failed-charge event.
type Failure struct {
	IntentID string
	Reason   string
}

// WebhookVerifier authenticates inbound gateway events. The secret is
// injected at construction; it is shared out-of-band with the gateway.
type WebhookVerifier struct {
	secret []byte
}

// NewWebhookVerifier creates a verifier for the given shared secret
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Verify checks the HMAC-SHA256 digest of the exact raw body against the
// signature header. The body must be the untouched byte sequence from the
// wire; any re-serialization changes the digest.
func (v *WebhookVerifier) Verify(body []byte, signature string) error {
	if signature == "" {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// Wire shapes of the gateway webhook payload.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID               string            `json:"id"`
	OrderID          string            `json:"order_id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Email            string            `json:"email"`
	ErrorDescription string            `json:"error_description"`
	Notes            map[string]string `json:"notes"`
}

// ParseEvent decodes a verified webhook body. It returns a Capture for
// capture-completed events, a Failure for failed-charge events, and
// (nil, nil, nil) for every other event type, which callers acknowledge
// and ignore.
func ParseEvent(body []byte) (*Capture, *Failure, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("failed to decode webhook body: %w", err)
	}

	entity := envelope.Payload.Payment.Entity

	switch envelope.Event {
	case eventPaymentCaptured:
		if entity.ID == "" || entity.OrderID == "" {
			return nil, nil, fmt.Errorf("capture event missing charge or intent id")
		}
		return &Capture{
			ChargeID: entity.ID,
			IntentID: entity.OrderID,
			Amount:   entity.Amount,
			Currency: entity.Currency,
			Email:    entity.Email,
			Notes:    entity.Notes,
		}, nil, nil

	case eventPaymentFailed:
		if entity.OrderID == "" {
			return nil, nil, fmt.Errorf("failure event missing intent id")
		}
		reason := entity.ErrorDescription
		if reason == "" {
			reason = "payment failed"
		}
		return nil, &Failure{IntentID: entity.OrderID, Reason: reason}, nil

	default:
		return nil, nil, nil
	}
}
