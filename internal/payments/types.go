package payments

import (
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidSignature means a webhook payload could not be authenticated.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")

	// ErrGatewayUnavailable wraps transport-level failures (timeouts, refused
	// connections, 5xx) so callers can answer 502 instead of 500.
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
)

type SessionLine struct {
	Name       string
	UnitAmount decimal.Decimal
	Quantity   int64
}

type SessionRequest struct {
	Reference     string // our checkout ID, echoed back in webhook metadata
	Amount        decimal.Decimal
	Currency      string
	Lines         []SessionLine
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
}

type SessionResponse struct {
	Handle     string // provider session ID, stored as the confirmation join key
	PaymentURL string
}

type SessionStatus struct {
	Handle string
	Paid   bool
	State  string          // provider payment status verbatim
	Raw    json.RawMessage // full provider payload, persisted as confirmation
}

type Event struct {
	Type   string
	Handle string // session ID the event refers to, empty if not session-scoped
	Raw    json.RawMessage
}
