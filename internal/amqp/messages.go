package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"envelopes/internal/budget"
)

// EnvelopeWarningMessage carries one threshold crossing of a fixed envelope
// from the API process to the notification worker.
type EnvelopeWarningMessage struct {
	UserID     string            `json:"userId"`
	EnvelopeID string            `json:"envelopeId"`
	Title      string            `json:"title"`
	Kind       budget.SignalKind `json:"kind"`
	Budget     decimal.Decimal   `json:"budget"`
	Spent      decimal.Decimal   `json:"spent"`
	Threshold  decimal.Decimal   `json:"threshold"`
	Overage    decimal.Decimal   `json:"overage"`
	Year       int               `json:"year"`
	Month      time.Month        `json:"month"`
	Timestamp  time.Time         `json:"timestamp"`
}

func NewEnvelopeWarningMessage(userID string, sig budget.WarningSignal, year int, month time.Month) *EnvelopeWarningMessage {
	return &EnvelopeWarningMessage{
		UserID:     userID,
		EnvelopeID: sig.EnvelopeID,
		Title:      sig.Title,
		Kind:       sig.Kind,
		Budget:     sig.Budget,
		Spent:      sig.Spent,
		Threshold:  sig.Threshold,
		Overage:    sig.Overage,
		Year:       year,
		Month:      month,
		Timestamp:  time.Now().UTC(),
	}
}

// Period returns the "YYYY-MM" month the warning refers to
func (m *EnvelopeWarningMessage) Period() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m *EnvelopeWarningMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EnvelopeWarningMessageFromJSON decodes and sanity-checks a message body
func EnvelopeWarningMessageFromJSON(data []byte) (*EnvelopeWarningMessage, error) {
	var msg EnvelopeWarningMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" || msg.EnvelopeID == "" {
		return nil, fmt.Errorf("warning message missing user or envelope id")
	}
	if msg.Kind != budget.Approaching && msg.Kind != budget.Exceeded {
		return nil, fmt.Errorf("unknown warning kind %q", msg.Kind)
	}
	return &msg, nil
}
