package carts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func amberGlow(enhanced bool, qty int64) LineItem {
	item := LineItem{
		ProductID: 101,
		Name:      "Amber Glow",
		Size:      "medium",
		Color:     "amber",
		Enhanced:  enhanced,
		UnitPrice: d("19.99"),
		Quantity:  qty,
	}
	if enhanced {
		item.Surcharge = d("3.99")
	}
	return item
}

func TestLineTotal(t *testing.T) {
	t.Run("enhanced line adds the surcharge per unit", func(t *testing.T) {
		// (19.99 + 3.99) × 2 = 47.96
		assert.True(t, amberGlow(true, 2).LineTotal().Equal(d("47.96")))
	})

	t.Run("plain line has no surcharge", func(t *testing.T) {
		assert.True(t, amberGlow(false, 2).LineTotal().Equal(d("39.98")))
	})
}

func TestAddLine(t *testing.T) {
	t.Run("same identity key folds into one line", func(t *testing.T) {
		var c Cart
		c.AddLine(amberGlow(false, 1))
		c.AddLine(amberGlow(false, 2))

		require.Len(t, c.Items, 1)
		assert.Equal(t, int64(3), c.Items[0].Quantity)
		assert.True(t, c.TotalPrice.Equal(d("59.97")))
	})

	t.Run("enhancement flag makes a distinct line", func(t *testing.T) {
		var c Cart
		c.AddLine(amberGlow(false, 1))
		c.AddLine(amberGlow(true, 1))

		require.Len(t, c.Items, 2)
		assert.True(t, c.TotalPrice.Equal(d("43.97")))
	})

	t.Run("size and color make distinct lines", func(t *testing.T) {
		var c Cart
		small := amberGlow(false, 1)
		small.Size = "small"
		ivory := amberGlow(false, 1)
		ivory.Color = "ivory"

		c.AddLine(amberGlow(false, 1))
		c.AddLine(small)
		c.AddLine(ivory)

		assert.Len(t, c.Items, 3)
	})
}

func TestSetQuantity(t *testing.T) {
	t.Run("sets the absolute quantity", func(t *testing.T) {
		var c Cart
		c.AddLine(amberGlow(false, 5))

		require.NoError(t, c.SetQuantity(amberGlow(false, 0).Key(), 2))
		assert.Equal(t, int64(2), c.Items[0].Quantity)
		assert.True(t, c.TotalPrice.Equal(d("39.98")))
	})

	t.Run("zero removes the line", func(t *testing.T) {
		var c Cart
		c.AddLine(amberGlow(false, 5))

		require.NoError(t, c.SetQuantity(amberGlow(false, 0).Key(), 0))
		assert.Empty(t, c.Items)
		assert.True(t, c.TotalPrice.IsZero())
	})

	t.Run("negative quantity removes the line too", func(t *testing.T) {
		var c Cart
		c.AddLine(amberGlow(false, 3))

		require.NoError(t, c.SetQuantity(amberGlow(false, 0).Key(), -1))
		assert.Empty(t, c.Items)
		assert.True(t, c.TotalPrice.IsZero())
	})

	t.Run("unknown line is rejected", func(t *testing.T) {
		var c Cart
		c.AddLine(amberGlow(false, 1))

		assert.ErrorIs(t, c.SetQuantity(amberGlow(true, 0).Key(), 2), ErrItemNotFound)
	})
}

func TestRemoveLine(t *testing.T) {
	var c Cart
	c.AddLine(amberGlow(false, 1))
	c.AddLine(amberGlow(true, 1))

	require.NoError(t, c.RemoveLine(amberGlow(true, 0).Key()))
	require.Len(t, c.Items, 1)
	assert.False(t, c.Items[0].Enhanced)
	assert.True(t, c.TotalPrice.Equal(d("19.99")))

	assert.ErrorIs(t, c.RemoveLine(amberGlow(true, 0).Key()), ErrItemNotFound)
}

func TestMergeFrom(t *testing.T) {
	t.Run("quantities add on identity key collisions", func(t *testing.T) {
		var user, guest Cart
		user.AddLine(amberGlow(false, 1))
		guest.AddLine(amberGlow(false, 2))
		guest.AddLine(amberGlow(true, 1))

		user.MergeFrom(&guest)

		require.Len(t, user.Items, 2)
		assert.Equal(t, int64(3), user.Items[0].Quantity)
		assert.True(t, user.TotalPrice.Equal(d("83.95")))
	})

	t.Run("receiving line keeps its captured price", func(t *testing.T) {
		var user, guest Cart
		user.AddLine(amberGlow(false, 1))

		stale := amberGlow(false, 1)
		stale.UnitPrice = d("24.99")
		guest.AddLine(stale)

		user.MergeFrom(&guest)

		require.Len(t, user.Items, 1)
		assert.True(t, user.Items[0].UnitPrice.Equal(d("19.99")))
		assert.True(t, user.TotalPrice.Equal(d("39.98")))
	})

	t.Run("merging an empty cart changes nothing", func(t *testing.T) {
		var user, guest Cart
		user.AddLine(amberGlow(false, 2))

		user.MergeFrom(&guest)

		assert.Len(t, user.Items, 1)
		assert.True(t, user.TotalPrice.Equal(d("39.98")))
	})
}

func TestOwner(t *testing.T) {
	assert.True(t, UserOwner(7).valid())
	assert.True(t, GuestOwner("g-123").valid())
	assert.False(t, Owner{}.valid())
	assert.False(t, GuestOwner("").valid())

	both := UserOwner(7)
	g := "g-123"
	both.GuestID = &g
	assert.False(t, both.valid())
}
