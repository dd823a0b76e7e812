package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	stripeAPIBase = "https://api.stripe.com"

	// Webhook timestamps older than this are rejected to blunt replays.
	signatureTolerance = 5 * time.Minute
)

// StripeAdapter talks to Stripe Checkout over its form-encoded REST API.
// Amounts cross the wire in the currency's smallest unit.
type StripeAdapter struct {
	SecretKey     string
	WebhookSecret string
	baseURL       string
	httpClient    *http.Client
	now           func() time.Time
}

func NewStripeAdapter(secretKey, webhookSecret string) *StripeAdapter {
	return &StripeAdapter{
		SecretKey:     secretKey,
		WebhookSecret: webhookSecret,
		baseURL:       stripeAPIBase,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		now:           time.Now,
	}
}

func (s *StripeAdapter) CreateSession(ctx context.Context, req SessionRequest) (SessionResponse, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("metadata[reference]", req.Reference)
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}

	for i, line := range req.Lines {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", req.Currency)
		form.Set(prefix+"[price_data][product_data][name]", line.Name)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(minorUnits(line.UnitAmount), 10))
		form.Set(prefix+"[quantity]", strconv.FormatInt(line.Quantity, 10))
	}

	raw, err := s.call(ctx, http.MethodPost, "/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return SessionResponse{}, err
	}

	var res struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return SessionResponse{}, fmt.Errorf("stripe create session decode: %w", err)
	}
	if res.ID == "" {
		return SessionResponse{}, fmt.Errorf("stripe create session: empty session id in response")
	}

	return SessionResponse{Handle: res.ID, PaymentURL: res.URL}, nil
}

func (s *StripeAdapter) RetrieveSession(ctx context.Context, handle string) (SessionStatus, error) {
	raw, err := s.call(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(handle), nil)
	if err != nil {
		return SessionStatus{}, err
	}

	var res struct {
		ID            string `json:"id"`
		PaymentStatus string `json:"payment_status"` // paid, unpaid, no_payment_required
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return SessionStatus{}, fmt.Errorf("stripe retrieve session decode: %w", err)
	}

	return SessionStatus{
		Handle: res.ID,
		Paid:   res.PaymentStatus == "paid",
		State:  res.PaymentStatus,
		Raw:    raw,
	}, nil
}

// VerifyEvent checks the Stripe-Signature header (t=<unix>,v1=<hmac hex>)
// against HMAC-SHA256(secret, "<t>.<payload>") and rejects stale timestamps.
func (s *StripeAdapter) VerifyEvent(payload []byte, sigHeader string) (Event, error) {
	ts, sigs := parseSignatureHeader(sigHeader)
	if ts == 0 || len(sigs) == 0 {
		return Event{}, ErrInvalidSignature
	}

	age := s.now().Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return Event{}, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(s.WebhookSecret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	ok := false
	for _, sig := range sigs {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			ok = true
		}
	}
	if !ok {
		return Event{}, ErrInvalidSignature
	}

	var evt struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, fmt.Errorf("stripe event decode: %w", err)
	}

	return Event{
		Type:   evt.Type,
		Handle: evt.Data.Object.ID,
		Raw:    json.RawMessage(payload),
	}, nil
}

func (s *StripeAdapter) call(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("stripe request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.SecretKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: http=%d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stripe %s %s failed: http=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	return raw, nil
}

// parseSignatureHeader splits "t=1699000000,v1=abc,v1=def" into the timestamp
// and every v1 candidate (Stripe sends several during secret rotation).
func parseSignatureHeader(header string) (int64, []string) {
	var ts int64
	var sigs []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err == nil {
				ts = parsed
			}
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}

	return ts, sigs
}

// minorUnits converts a decimal price to the currency's smallest unit.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
