package orders

import (
	"errors"
	"time"

	"ember/internal/domain/carts"
	"ember/internal/domain/checkouts"

	"github.com/shopspring/decimal"
)

const (
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrNotAuthorized means the order exists but belongs to someone else.
	ErrNotAuthorized = errors.New("order belongs to another user")

	// ErrTerminalState means the order is delivered or cancelled; nothing
	// moves it from there.
	ErrTerminalState = errors.New("order is in a terminal state")
)

// Order is the immutable record materialized from a paid checkout. Items,
// shipping and total are copied verbatim; only fulfillment status moves.
type Order struct {
	ID            int64              `json:"id"`
	OrderNumber   string             `json:"order_number"`
	UserID        int64              `json:"user_id"`
	CheckoutID    int64              `json:"checkout_id"`
	Items         []carts.LineItem   `json:"items"`
	Shipping      checkouts.Shipping `json:"shipping"`
	PaymentMethod string             `json:"payment_method"`
	TotalPrice    decimal.Decimal    `json:"total_price"`
	Paid          bool               `json:"paid"`
	PaidAt        *time.Time         `json:"paid_at,omitempty"`
	Status        string             `json:"status"`
	IsDelivered   bool               `json:"is_delivered"`
	DeliveredAt   *time.Time         `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}
