package checkouts

import (
	"encoding/json"
	"errors"
	"time"

	"ember/internal/domain/carts"

	"github.com/shopspring/decimal"
)

var (
	ErrCheckoutNotFound  = errors.New("checkout not found")
	ErrEmptyCheckout     = errors.New("checkout requires at least one item")
	ErrNotAuthorized     = errors.New("checkout belongs to another user")
	ErrNoPaymentSession  = errors.New("no payment session issued for checkout")
	ErrPaymentIncomplete = errors.New("payment not completed")
	ErrAlreadyPaid       = errors.New("checkout already paid")
	ErrAlreadyFinalized  = errors.New("checkout already finalized")
)

// Shipping is the address snapshot stored with the checkout. Validated at
// the boundary, opaque afterwards.
type Shipping struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// CheckoutSession is an immutable snapshot of a cart at purchase intent,
// plus the payment state machine: pending → paid → finalized. Paid and
// finalized only ever go false→true.
type CheckoutSession struct {
	ID            int64            `json:"id"`
	UserID        int64            `json:"user_id"`
	Items         []carts.LineItem `json:"items"`
	Shipping      Shipping         `json:"shipping"`
	PaymentMethod string           `json:"payment_method"`
	TotalPrice    decimal.Decimal  `json:"total_price"`
	PaymentStatus string           `json:"payment_status"`
	SessionHandle *string          `json:"session_handle,omitempty"`
	Paid          bool             `json:"paid"`
	PaidAt        *time.Time       `json:"paid_at,omitempty"`
	Finalized     bool             `json:"finalized"`
	FinalizedAt   *time.Time       `json:"finalized_at,omitempty"`
	Confirmation  json.RawMessage  `json:"confirmation,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (cs *CheckoutSession) OwnedBy(userID int64) bool {
	return cs.UserID == userID
}

// CanIssueSession reports whether a (re)issue of the hosted payment session
// is allowed. Reissue before payment is fine and overwrites the handle.
func (cs *CheckoutSession) CanIssueSession() error {
	if cs.Finalized {
		return ErrAlreadyFinalized
	}
	if cs.Paid {
		return ErrAlreadyPaid
	}
	return nil
}

// CanFinalize reports whether the checkout may be materialized into an order
// given its locally known state. A false Paid here is not final: the caller
// may still poll the gateway and mark paid first.
func (cs *CheckoutSession) CanFinalize() error {
	if cs.Finalized {
		return ErrAlreadyFinalized
	}
	if cs.SessionHandle == nil || *cs.SessionHandle == "" {
		return ErrNoPaymentSession
	}
	if !cs.Paid {
		return ErrPaymentIncomplete
	}
	return nil
}
