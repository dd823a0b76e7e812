package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ember/internal/auth"
	"ember/internal/domain/storage"
	"ember/internal/mailer"
	"ember/internal/payments"
	"ember/internal/ratelimiter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type application struct {
	config        config
	store         *storage.Container
	logger        *zap.SugaredLogger
	mailer        mailer.Client
	authenticator auth.Authenticator
	gateway       payments.Gateway
	rateLimiter   ratelimiter.Limiter
}

type config struct {
	addr        string
	db          dbConfig
	env         string
	apiURL      string
	frontendURL string
	mail        mailConfig
	auth        authConfig
	payments    paymentsConfig
	cart        cartConfig
	rateLimiter ratelimiter.Config
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type tokenConfig struct {
	secret string
	exp    time.Duration
	iss    string
}

type basicConfig struct {
	user string
	pass string
}

type mailConfig struct {
	fromEmail string
	mailtrap  mailTrapConfig
}

type mailTrapConfig struct {
	apiKey string
}

type dbConfig struct {
	addr        string
	maxConns    int
	maxIdleTime string
}

type paymentsConfig struct {
	secretKey     string
	webhookSecret string
	currency      string
	successURL    string
	cancelURL     string
}

type cartConfig struct {
	// Flat per-unit surcharge applied to enhanced lines, captured into the
	// line at add time.
	enhancementSurcharge decimal.Decimal
	orderNumberSalt      string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(app.RateLimiterMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Guest-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	//Set a timeout value on the request context (ctx), that will signal through ctx.Done() that the request has timed out and further processing should be stopped
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		// Cart works for guests and signed-in users alike; identity is
		// resolved per request from the bearer token or X-Guest-Token.
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", app.getCartHandler)
			r.Post("/items", app.addCartItemHandler)
			r.Patch("/items", app.updateCartItemHandler)
			r.Delete("/items", app.removeCartItemHandler)

			r.With(app.AuthTokenMiddleware).Post("/merge", app.mergeCartHandler)
		})

		r.Route("/checkout", func(r chi.Router) {
			// Provider calls this; authentication is the signature header.
			r.Post("/webhook", app.paymentWebhookHandler)

			r.Group(func(r chi.Router) {
				r.Use(app.AuthTokenMiddleware)
				r.Post("/", app.createCheckoutHandler)
				r.Get("/session/{handle}", app.getCheckoutByHandleHandler)
				r.Post("/{checkoutID}/payment-session", app.issuePaymentSessionHandler)
				r.Post("/{checkoutID}/finalize", app.finalizeCheckoutHandler)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.Get("/", app.listOrdersHandler)
			r.Get("/{orderID}", app.getOrderHandler)
			r.Put("/{orderID}/cancel", app.cancelOrderHandler)
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	// Implementing graceful shutdown
	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
