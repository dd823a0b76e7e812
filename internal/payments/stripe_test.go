package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signPayload(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func testAdapter(secret string, at time.Time) *StripeAdapter {
	a := NewStripeAdapter("sk_test_x", secret)
	a.now = func() time.Time { return at }
	return a
}

func TestVerifyEvent(t *testing.T) {
	const secret = "whsec_test"
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_test_123"}}}`)

	t.Run("valid signature decodes the event", func(t *testing.T) {
		a := testAdapter(secret, now)

		evt, err := a.VerifyEvent(payload, signPayload(secret, now.Unix(), payload))
		require.NoError(t, err)
		assert.Equal(t, "checkout.session.completed", evt.Type)
		assert.Equal(t, "cs_test_123", evt.Handle)
	})

	t.Run("tampered payload is rejected", func(t *testing.T) {
		a := testAdapter(secret, now)
		header := signPayload(secret, now.Unix(), payload)

		tampered := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_evil"}}}`)
		_, err := a.VerifyEvent(tampered, header)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		a := testAdapter(secret, now)

		_, err := a.VerifyEvent(payload, signPayload("whsec_other", now.Unix(), payload))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("stale timestamp is rejected", func(t *testing.T) {
		a := testAdapter(secret, now)
		old := now.Add(-signatureTolerance - time.Second).Unix()

		_, err := a.VerifyEvent(payload, signPayload(secret, old, payload))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		a := testAdapter(secret, now)

		for _, header := range []string{"", "t=notanumber,v1=ff", "v1=ff", "t=1700000000"} {
			_, err := a.VerifyEvent(payload, header)
			assert.ErrorIs(t, err, ErrInvalidSignature, "header %q", header)
		}
	})

	t.Run("rotated secrets send several v1 candidates", func(t *testing.T) {
		a := testAdapter(secret, now)
		good := signPayload(secret, now.Unix(), payload)

		header := fmt.Sprintf("t=%d,v1=deadbeef,%s", now.Unix(), good[strings.Index(good, ",")+1:])
		_, err := a.VerifyEvent(payload, header)
		assert.NoError(t, err)
	})
}

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.Equal(t, "Bearer sk_test_x", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "payment", r.PostForm.Get("mode"))
		assert.Equal(t, "42", r.PostForm.Get("metadata[reference]"))
		assert.Equal(t, "usd", r.PostForm.Get("line_items[0][price_data][currency]"))
		assert.Equal(t, "2398", r.PostForm.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "2", r.PostForm.Get("line_items[0][quantity]"))

		fmt.Fprint(w, `{"id":"cs_test_abc","url":"https://checkout.stripe.test/pay/cs_test_abc"}`)
	}))
	defer srv.Close()

	a := NewStripeAdapter("sk_test_x", "whsec_test")
	a.baseURL = srv.URL

	res, err := a.CreateSession(context.Background(), SessionRequest{
		Reference: "42",
		Currency:  "usd",
		Amount:    decimal.RequireFromString("47.96"),
		Lines: []SessionLine{
			{Name: "Amber Glow (enhanced)", UnitAmount: decimal.RequireFromString("23.98"), Quantity: 2},
		},
		SuccessURL: "https://shop.test/success",
		CancelURL:  "https://shop.test/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_abc", res.Handle)
	assert.Equal(t, "https://checkout.stripe.test/pay/cs_test_abc", res.PaymentURL)
}

func TestRetrieveSession(t *testing.T) {
	t.Run("paid session", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/checkout/sessions/cs_test_abc", r.URL.Path)
			fmt.Fprint(w, `{"id":"cs_test_abc","payment_status":"paid"}`)
		}))
		defer srv.Close()

		a := NewStripeAdapter("sk_test_x", "whsec_test")
		a.baseURL = srv.URL

		status, err := a.RetrieveSession(context.Background(), "cs_test_abc")
		require.NoError(t, err)
		assert.True(t, status.Paid)
		assert.Equal(t, "paid", status.State)
	})

	t.Run("unpaid session", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"id":"cs_test_abc","payment_status":"unpaid"}`)
		}))
		defer srv.Close()

		a := NewStripeAdapter("sk_test_x", "whsec_test")
		a.baseURL = srv.URL

		status, err := a.RetrieveSession(context.Background(), "cs_test_abc")
		require.NoError(t, err)
		assert.False(t, status.Paid)
	})

	t.Run("5xx surfaces as gateway unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		a := NewStripeAdapter("sk_test_x", "whsec_test")
		a.baseURL = srv.URL

		_, err := a.RetrieveSession(context.Background(), "cs_test_abc")
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
	})
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1999), minorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(399), minorUnits(decimal.RequireFromString("3.99")))
	assert.Equal(t, int64(2000), minorUnits(decimal.RequireFromString("20")))
}
