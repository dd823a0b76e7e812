package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ember/internal/domain/orders"
	"ember/internal/params"

	"github.com/go-chi/chi/v5"
)

// listOrdersHandler godoc
//
//	@Summary		List my orders
//	@Description	Newest first, paginated with ?page=&limit=
//	@Tags			orders
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		ApiKeyAuth
//	@Router			/orders [get]
func (app *application) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	p := params.ParsePagination(r.URL.Query())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, total, err := app.store.Sales.Orders.ListByUser(ctx, user.ID, p.Limit, p.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	p.ComputeMeta(total)

	data := map[string]any{
		"orders":     list,
		"pagination": p,
	}

	if err := app.jsonResponse(w, http.StatusOK, data); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getOrderHandler godoc
//
//	@Summary		Get one of my orders
//	@Tags			orders
//	@Produce		json
//	@Success		200	{object}	orders.Order
//	@Failure		404	{object}	error
//	@Security		ApiKeyAuth
//	@Router			/orders/{orderID} [get]
func (app *application) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("invalid order ID"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := app.store.Sales.Orders.GetDetailForUser(ctx, user.ID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, order); err != nil {
		app.internalServerError(w, r, err)
	}
}

// cancelOrderHandler godoc
//
//	@Summary		Cancel one of my orders
//	@Description	Delivered and cancelled orders stay as they are
//	@Tags			orders
//	@Produce		json
//	@Success		200	{object}	orders.Order
//	@Failure		403	{object}	error	"not the owner"
//	@Failure		404	{object}	error
//	@Failure		409	{object}	error	"terminal state"
//	@Security		ApiKeyAuth
//	@Router			/orders/{orderID}/cancel [put]
func (app *application) cancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("invalid order ID"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := app.store.Sales.Orders.Cancel(ctx, user.ID, orderID); err != nil {
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			app.notFoundResponse(w, r, err)
		case errors.Is(err, orders.ErrNotAuthorized):
			app.forbiddenResponse(w, r)
		case errors.Is(err, orders.ErrTerminalState):
			app.conflictResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	order, err := app.store.Sales.Orders.GetDetailForUser(ctx, user.ID, orderID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.logger.Infow("order cancelled", "order_number", order.OrderNumber, "user_id", user.ID)

	if err := app.jsonResponse(w, http.StatusOK, order); err != nil {
		app.internalServerError(w, r, err)
	}
}
