package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"ember/internal/domain/carts"
	"ember/internal/domain/checkouts"
	"ember/internal/domain/orders"
	"ember/internal/domain/storage"
	"ember/internal/mailer"
	"ember/internal/payments"

	"github.com/go-chi/chi/v5"
)

type createCheckoutPayload struct {
	Shipping struct {
		FullName   string `json:"full_name" validate:"required,max=120"`
		Line1      string `json:"line1" validate:"required,max=200"`
		Line2      string `json:"line2" validate:"max=200"`
		City       string `json:"city" validate:"required,max=100"`
		Region     string `json:"region" validate:"max=100"`
		PostalCode string `json:"postal_code" validate:"required,max=20"`
		Country    string `json:"country" validate:"required,max=60"`
		Phone      string `json:"phone" validate:"max=30"`
	} `json:"shipping" validate:"required"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=card"`
}

// createCheckoutHandler godoc
//
//	@Summary		Create a checkout from the current cart
//	@Description	Snapshots cart lines, shipping and total into an immutable checkout
//	@Tags			checkout
//	@Accept			json
//	@Produce		json
//	@Success		201	{object}	checkouts.CheckoutSession
//	@Failure		400	{object}	error	"empty cart"
//	@Security		ApiKeyAuth
//	@Router			/checkout [post]
func (app *application) createCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload createCheckoutPayload
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

	cart, err := app.store.Sales.Carts.Get(ctx, carts.UserOwner(user.ID))
	if err != nil {
		switch {
		case errors.Is(err, carts.ErrCartNotFound):
			app.badRequestResponse(w, r, checkouts.ErrEmptyCheckout)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	checkout, err := app.store.Sales.Checkouts.Create(ctx, checkouts.CreateInput{
		UserID: user.ID,
		Items:  cart.Items,
		Shipping: checkouts.Shipping{
			FullName:   payload.Shipping.FullName,
			Line1:      payload.Shipping.Line1,
			Line2:      payload.Shipping.Line2,
			City:       payload.Shipping.City,
			Region:     payload.Shipping.Region,
			PostalCode: payload.Shipping.PostalCode,
			Country:    payload.Shipping.Country,
			Phone:      payload.Shipping.Phone,
		},
		PaymentMethod: payload.PaymentMethod,
		TotalPrice:    cart.TotalPrice,
	})
	if err != nil {
		switch {
		case errors.Is(err, checkouts.ErrEmptyCheckout):
			app.badRequestResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, checkout); err != nil {
		app.internalServerError(w, r, err)
	}
}

// issuePaymentSessionHandler godoc
//
//	@Summary		Issue (or reissue) the hosted payment session
//	@Description	Opens a provider session and stores its handle on the checkout
//	@Tags			checkout
//	@Produce		json
//	@Success		200	{object}	payments.SessionResponse
//	@Failure		409	{object}	error	"already paid or finalized"
//	@Failure		502	{object}	error	"provider unavailable"
//	@Security		ApiKeyAuth
//	@Router			/checkout/{checkoutID}/payment-session [post]
func (app *application) issuePaymentSessionHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	checkoutID, err := strconv.ParseInt(chi.URLParam(r, "checkoutID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("invalid checkout ID"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	checkout, err := app.store.Sales.Checkouts.GetByID(ctx, checkoutID)
	if err != nil {
		switch {
		case errors.Is(err, checkouts.ErrCheckoutNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if !checkout.OwnedBy(user.ID) {
		app.forbiddenResponse(w, r)
		return
	}
	if err := checkout.CanIssueSession(); err != nil {
		app.conflictResponse(w, r, err)
		return
	}

	lines := make([]payments.SessionLine, 0, len(checkout.Items))
	for _, item := range checkout.Items {
		name := item.Name
		if item.Enhanced {
			name += " (enhanced)"
		}
		lines = append(lines, payments.SessionLine{
			Name:       name,
			UnitAmount: item.UnitPrice.Add(item.Surcharge),
			Quantity:   item.Quantity,
		})
	}

	session, err := app.gateway.CreateSession(ctx, payments.SessionRequest{
		Reference:     strconv.FormatInt(checkout.ID, 10),
		Amount:        checkout.TotalPrice,
		Currency:      app.config.payments.currency,
		Lines:         lines,
		SuccessURL:    app.config.payments.successURL,
		CancelURL:     app.config.payments.cancelURL,
		CustomerEmail: user.Email,
	})
	if err != nil {
		if errors.Is(err, payments.ErrGatewayUnavailable) {
			app.badGatewayResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	if err := app.store.Sales.Checkouts.SetSessionHandle(ctx, checkout.ID, session.Handle); err != nil {
		switch {
		case errors.Is(err, checkouts.ErrAlreadyPaid):
			app.conflictResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	app.logger.Infow("payment session issued", "checkout_id", checkout.ID, "handle", session.Handle)

	if err := app.jsonResponse(w, http.StatusOK, session); err != nil {
		app.internalServerError(w, r, err)
	}
}

// paymentWebhookHandler receives provider events. The signature header is
// the only authentication. A verified delivery is always acknowledged with
// 200, whatever it changed: the provider retries anything else, and
// replays must stay harmless.
func (app *application) paymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 65536)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	event, err := app.gateway.VerifyEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		app.logger.Warnw("webhook rejected", "error", err.Error())
		writeJSONError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if event.Type == "checkout.session.completed" && event.Handle != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		applied, err := app.store.Sales.Checkouts.MarkPaidByHandle(ctx, event.Handle, event.Raw)
		if err != nil {
			app.internalServerError(w, r, err)
			return
		}
		if applied {
			app.logger.Infow("checkout marked paid via webhook", "handle", event.Handle)
		} else {
			// Replay or unknown handle. Either way there is nothing to do.
			app.logger.Infow("webhook event ignored", "handle", event.Handle)
		}
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]bool{"received": true}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getCheckoutByHandleHandler godoc
//
//	@Summary		Look a checkout up by provider session handle
//	@Tags			checkout
//	@Produce		json
//	@Success		200	{object}	checkouts.CheckoutSession
//	@Failure		404	{object}	error
//	@Security		ApiKeyAuth
//	@Router			/checkout/session/{handle} [get]
func (app *application) getCheckoutByHandleHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	handle := chi.URLParam(r, "handle")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checkout, err := app.store.Sales.Checkouts.GetByHandle(ctx, handle)
	if err != nil {
		switch {
		case errors.Is(err, checkouts.ErrCheckoutNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if !checkout.OwnedBy(user.ID) {
		app.forbiddenResponse(w, r)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, checkout); err != nil {
		app.internalServerError(w, r, err)
	}
}

// finalizeCheckoutHandler godoc
//
//	@Summary		Materialize the order for a paid checkout
//	@Description	Polls the provider when the webhook hasn't landed yet, then creates the order atomically
//	@Tags			checkout
//	@Produce		json
//	@Success		201	{object}	orders.Order
//	@Failure		400	{object}	error	"payment incomplete"
//	@Failure		409	{object}	error	"already finalized"
//	@Security		ApiKeyAuth
//	@Router			/checkout/{checkoutID}/finalize [post]
func (app *application) finalizeCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	checkoutID, err := strconv.ParseInt(chi.URLParam(r, "checkoutID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("invalid checkout ID"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	checkout, err := app.store.Sales.Checkouts.GetByID(ctx, checkoutID)
	if err != nil {
		switch {
		case errors.Is(err, checkouts.ErrCheckoutNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if !checkout.OwnedBy(user.ID) {
		app.forbiddenResponse(w, r)
		return
	}
	if checkout.Finalized {
		app.conflictResponse(w, r, checkouts.ErrAlreadyFinalized)
		return
	}
	if checkout.SessionHandle == nil || *checkout.SessionHandle == "" {
		app.badRequestResponse(w, r, checkouts.ErrNoPaymentSession)
		return
	}

	// Webhook may not have landed yet; ask the provider directly before
	// giving up on an unpaid checkout.
	if !checkout.Paid {
		status, err := app.gateway.RetrieveSession(ctx, *checkout.SessionHandle)
		if err != nil {
			if errors.Is(err, payments.ErrGatewayUnavailable) {
				app.badGatewayResponse(w, r, err)
				return
			}
			app.internalServerError(w, r, err)
			return
		}
		if !status.Paid {
			app.badRequestResponse(w, r, checkouts.ErrPaymentIncomplete)
			return
		}

		if _, err := app.store.Sales.Checkouts.MarkPaid(ctx, checkout.ID, status.Raw); err != nil {
			app.internalServerError(w, r, err)
			return
		}

		// Re-read so the order snapshot carries paid_at and confirmation.
		checkout, err = app.store.Sales.Checkouts.GetByID(ctx, checkout.ID)
		if err != nil {
			app.internalServerError(w, r, err)
			return
		}
	}

	var order *orders.Order
	err = app.store.WithSalesTx(ctx, func(s *storage.SalesTx) error {
		if err := s.Checkouts.MarkFinalized(ctx, checkout.ID); err != nil {
			return err
		}

		var err error
		order, err = s.Orders.CreateFromCheckout(ctx, checkout)
		if err != nil {
			return err
		}

		// The purchased cart is done; removing it in the same tx means a
		// failed finalize leaves it untouched.
		return s.Carts.DeleteByUser(ctx, user.ID)
	})
	if err != nil {
		switch {
		case errors.Is(err, checkouts.ErrAlreadyFinalized):
			app.conflictResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	app.logger.Infow("order created", "order_number", order.OrderNumber, "checkout_id", checkout.ID, "user_id", user.ID)

	app.background(func() {
		data := map[string]any{
			"Username":    user.Username,
			"OrderNumber": order.OrderNumber,
			"Items":       order.Items,
			"Total":       order.TotalPrice.StringFixed(2),
		}
		if _, err := app.mailer.Send(mailer.OrderConfirmationTemplate, user.Username, user.Email, data); err != nil {
			app.logger.Errorw("failed to send order confirmation", "order_number", order.OrderNumber, "error", err.Error())
		}
	})

	if err := app.jsonResponse(w, http.StatusCreated, order); err != nil {
		app.internalServerError(w, r, err)
	}
}
