package payments

import "context"

// Gateway defines a common interface for hosted-checkout payment providers.
// Handlers depend on this, never on a concrete adapter.
type Gateway interface {
	// CreateSession opens a hosted payment session and returns its provider
	// handle plus the URL the client is redirected to.
	CreateSession(ctx context.Context, req SessionRequest) (SessionResponse, error)

	// RetrieveSession looks the session up at the provider and reports
	// whether it has been paid.
	RetrieveSession(ctx context.Context, handle string) (SessionStatus, error)

	// VerifyEvent authenticates a webhook delivery against its signature
	// header and decodes it. Fails closed: any signature problem returns
	// ErrInvalidSignature and an empty event.
	VerifyEvent(payload []byte, sigHeader string) (Event, error)
}
