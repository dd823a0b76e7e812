package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ember/internal/domain/carts"
	"ember/internal/domain/catalog"
	"ember/internal/domain/storage"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

const guestTokenHeader = "X-Guest-Token"

// resolveCartOwner figures out who the cart belongs to: a valid bearer token
// wins, otherwise the guest token header. ok is false when the request
// carries neither.
func (app *application) resolveCartOwner(r *http.Request) (carts.Owner, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			if jwtToken, err := app.authenticator.ValidateToken(parts[1]); err == nil {
				claims, _ := jwtToken.Claims.(jwt.MapClaims)
				if userID, err := strconv.ParseInt(fmt.Sprintf("%.f", claims["sub"]), 10, 64); err == nil {
					return carts.UserOwner(userID), true
				}
			}
		}
	}

	if guestID := strings.TrimSpace(r.Header.Get(guestTokenHeader)); guestID != "" {
		return carts.GuestOwner(guestID), true
	}

	return carts.Owner{}, false
}

type cartItemKeyPayload struct {
	ProductID int64  `json:"product_id" validate:"required"`
	Size      string `json:"size" validate:"required,max=50"`
	Color     string `json:"color" validate:"required,max=50"`
	Enhanced  bool   `json:"enhanced"`
}

func (p cartItemKeyPayload) key() carts.LineKey {
	return carts.LineKey{ProductID: p.ProductID, Size: p.Size, Color: p.Color, Enhanced: p.Enhanced}
}

type cartEnvelope struct {
	Cart       *carts.Cart `json:"cart"`
	GuestToken string      `json:"guest_token,omitempty"`
}

// getCartHandler godoc
//
//	@Summary		Get the current cart
//	@Description	Resolves the cart by bearer token or X-Guest-Token header
//	@Tags			cart
//	@Produce		json
//	@Success		200	{object}	cartEnvelope
//	@Failure		400	{object}	error	"no identity supplied"
//	@Failure		404	{object}	error	"no cart yet"
//	@Router			/cart [get]
func (app *application) getCartHandler(w http.ResponseWriter, r *http.Request) {
	owner, ok := app.resolveCartOwner(r)
	if !ok {
		app.badRequestResponse(w, r, errors.New("authentication or guest token required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cart, err := app.store.Sales.Carts.Get(ctx, owner)
	if err != nil {
		switch {
		case errors.Is(err, carts.ErrCartNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, cartEnvelope{Cart: cart}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// addCartItemHandler godoc
//
//	@Summary		Add an item to the cart
//	@Description	Creates the cart lazily; first-time guests get a token back
//	@Tags			cart
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	cartEnvelope
//	@Failure		400	{object}	error
//	@Failure		404	{object}	error	"product not found"
//	@Router			/cart/items [post]
func (app *application) addCartItemHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		cartItemKeyPayload
		Quantity int64 `json:"quantity" validate:"required,min=1,max=99"`
	}

	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	// No identity at all means a brand-new guest: mint their token here and
	// hand it back with the cart.
	var issuedGuestToken string
	owner, ok := app.resolveCartOwner(r)
	if !ok {
		issuedGuestToken = app.store.Sales.Carts.NewGuestID()
		owner = carts.GuestOwner(issuedGuestToken)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	product, err := app.store.Catalog.GetProduct(ctx, payload.ProductID)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrProductNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if !contains(product.Sizes, payload.Size) {
		app.badRequestResponse(w, r, fmt.Errorf("size %q is not offered for this product", payload.Size))
		return
	}
	if !contains(product.Colors, payload.Color) {
		app.badRequestResponse(w, r, fmt.Errorf("color %q is not offered for this product", payload.Color))
		return
	}

	item := carts.LineItem{
		ProductID: product.ID,
		Name:      product.Name,
		Size:      payload.Size,
		Color:     payload.Color,
		Enhanced:  payload.Enhanced,
		UnitPrice: product.Price,
		Surcharge: decimal.Zero,
		Quantity:  payload.Quantity,
	}
	if product.ImageURL != nil {
		item.ImageURL = *product.ImageURL
	}
	if payload.Enhanced {
		item.Surcharge = app.config.cart.enhancementSurcharge
	}

	cart, err := app.store.Sales.Carts.AddItem(ctx, owner, item)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if issuedGuestToken != "" {
		w.Header().Set(guestTokenHeader, issuedGuestToken)
	}
	if err := app.jsonResponse(w, http.StatusOK, cartEnvelope{Cart: cart, GuestToken: issuedGuestToken}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// updateCartItemHandler sets the absolute quantity of a line; zero or a
// negative quantity removes it.
func (app *application) updateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		cartItemKeyPayload
		Quantity int64 `json:"quantity" validate:"max=99"`
	}

	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	owner, ok := app.resolveCartOwner(r)
	if !ok {
		app.badRequestResponse(w, r, errors.New("authentication or guest token required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cart, err := app.store.Sales.Carts.UpdateQuantity(ctx, owner, payload.key(), payload.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, carts.ErrCartNotFound), errors.Is(err, carts.ErrItemNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, cartEnvelope{Cart: cart}); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) removeCartItemHandler(w http.ResponseWriter, r *http.Request) {
	var payload cartItemKeyPayload

	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	owner, ok := app.resolveCartOwner(r)
	if !ok {
		app.badRequestResponse(w, r, errors.New("authentication or guest token required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cart, err := app.store.Sales.Carts.RemoveItem(ctx, owner, payload.key())
	if err != nil {
		switch {
		case errors.Is(err, carts.ErrCartNotFound), errors.Is(err, carts.ErrItemNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, cartEnvelope{Cart: cart}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// mergeCartHandler godoc
//
//	@Summary		Merge the guest cart into the signed-in user's cart
//	@Description	Adds quantities on matching lines and retires the guest cart
//	@Tags			cart
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	cartEnvelope
//	@Failure		400	{object}	error	"guest cart empty"
//	@Failure		404	{object}	error	"nothing to merge"
//	@Security		ApiKeyAuth
//	@Router			/cart/merge [post]
func (app *application) mergeCartHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload struct {
		GuestToken string `json:"guest_token" validate:"required,max=100"`
	}

	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var merged *carts.Cart
	err := app.store.WithSalesTx(ctx, func(s *storage.SalesTx) error {
		var err error
		merged, err = s.Carts.Merge(ctx, payload.GuestToken, user.ID)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, carts.ErrNothingToMerge):
			app.notFoundResponse(w, r, err)
		case errors.Is(err, carts.ErrEmptyGuestCart):
			app.badRequestResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, cartEnvelope{Cart: merged}); err != nil {
		app.internalServerError(w, r, err)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
