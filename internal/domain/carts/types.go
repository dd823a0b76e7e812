package carts

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineKey is the identity of a cart line. Two additions with the same key
// collapse into one line; differing on any field makes a distinct line.
type LineKey struct {
	ProductID int64  `json:"product_id"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Enhanced  bool   `json:"enhanced"`
}

// LineItem is one cart line. Price, surcharge and display metadata are
// captured at add time; later catalog edits do not rewrite existing lines.
type LineItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url,omitempty"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
	Enhanced  bool            `json:"enhanced"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Surcharge decimal.Decimal `json:"surcharge"`
	Quantity  int64           `json:"quantity"`
}

func (li LineItem) Key() LineKey {
	return LineKey{ProductID: li.ProductID, Size: li.Size, Color: li.Color, Enhanced: li.Enhanced}
}

// LineTotal is (unit price + enhancement surcharge) × quantity. Surcharge is
// zero on non-enhanced lines, so the addition is unconditional.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Add(li.Surcharge).Mul(decimal.NewFromInt(li.Quantity))
}

// Owner identifies a cart by exactly one of an authenticated user or a guest
// token.
type Owner struct {
	UserID  *int64
	GuestID *string
}

func UserOwner(userID int64) Owner    { return Owner{UserID: &userID} }
func GuestOwner(guestID string) Owner { return Owner{GuestID: &guestID} }

func (o Owner) valid() bool {
	return (o.UserID != nil) != (o.GuestID != nil && *o.GuestID != "")
}

// Cart is a single-document aggregate: all lines live in one row and every
// mutation replaces the whole document under an optimistic version check.
type Cart struct {
	ID         int64           `json:"id"`
	UserID     *int64          `json:"user_id,omitempty"`
	GuestID    *string         `json:"guest_id,omitempty"`
	Items      []LineItem      `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Version    int64           `json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (c *Cart) findLine(key LineKey) int {
	for i := range c.Items {
		if c.Items[i].Key() == key {
			return i
		}
	}
	return -1
}

// AddLine folds the item into an existing line with the same identity key or
// appends a new line, then recomputes the total.
func (c *Cart) AddLine(item LineItem) {
	if i := c.findLine(item.Key()); i >= 0 {
		c.Items[i].Quantity += item.Quantity
	} else {
		c.Items = append(c.Items, item)
	}
	c.recompute()
}

// SetQuantity sets the absolute quantity of the identified line. Any quantity
// at or below zero removes the line. Unknown lines are rejected.
func (c *Cart) SetQuantity(key LineKey, quantity int64) error {
	i := c.findLine(key)
	if i < 0 {
		return ErrItemNotFound
	}

	if quantity <= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	} else {
		c.Items[i].Quantity = quantity
	}
	c.recompute()
	return nil
}

// RemoveLine drops the identified line.
func (c *Cart) RemoveLine(key LineKey) error {
	i := c.findLine(key)
	if i < 0 {
		return ErrItemNotFound
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.recompute()
	return nil
}

// MergeFrom folds every line of other into c, adding quantities on identity
// key collisions. The receiving line's captured price and metadata win.
func (c *Cart) MergeFrom(other *Cart) {
	for _, item := range other.Items {
		if i := c.findLine(item.Key()); i >= 0 {
			c.Items[i].Quantity += item.Quantity
		} else {
			c.Items = append(c.Items, item)
		}
	}
	c.recompute()
}

// recompute rebuilds the stored total from the lines. The total is always
// derived, never adjusted incrementally.
func (c *Cart) recompute() {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	c.TotalPrice = total
}
