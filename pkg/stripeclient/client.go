/**
 * @description
 * Client for creating and retrieving Stripe hosted checkout sessions.
 */
package stripeclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/domain"
)

var (
	ErrSessionNotFound     = errors.New("checkout session not found")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// Client wraps the Stripe API for checkout sessions.
type Client struct {
	api *client.API
}

// NewClient creates a Stripe client. An empty apiURL targets the live Stripe API.
// Network retries are disabled so a failed request surfaces immediately.
func NewClient(secretKey string, apiURL string, logger *slog.Logger) *Client {
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: 15 * time.Second},
		MaxNetworkRetries: stripe.Int64(0),
		EnableTelemetry:   stripe.Bool(false),
	}
	if logger != nil {
		cfg.LeveledLogger = &slogLeveledLogger{logger: logger}
	}
	if trimmed := strings.TrimSuffix(strings.TrimSpace(apiURL), "/"); trimmed != "" {
		cfg.URL = stripe.String(trimmed)
	}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	api := client.New(strings.TrimSpace(secretKey), &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	return &Client{api: api}
}

// CreateCheckoutSession opens a one-off payment session for a credit package.
func (c *Client) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{lineItem(req.Package)},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
	}
	params.Context = ctx
	params.AddMetadata(domain.MetadataUserID, req.UserID)
	params.AddMetadata(domain.MetadataCreditsAmount, strconv.FormatInt(req.Package.CreditAmount, 10))
	params.AddMetadata(domain.MetadataPackageID, req.Package.ID)

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, translateError(err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, fmt.Errorf("%w: checkout session response missing id or url", ErrProviderUnavailable)
	}

	return toDomainSession(session), nil
}

// GetCheckoutSession retrieves a session by id.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionNotFound
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	session, err := c.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, translateError(err)
	}

	return toDomainSession(session), nil
}

func lineItem(pkg domain.CreditPackage) *stripe.CheckoutSessionLineItemParams {
	item := &stripe.CheckoutSessionLineItemParams{Quantity: stripe.Int64(1)}

	ref := pkg.ProviderProductRef
	if strings.HasPrefix(ref, "price_") {
		item.Price = stripe.String(ref)
		return item
	}

	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(strings.ToLower(pkg.Currency)),
		UnitAmount: stripe.Int64(pkg.PriceMinorUnits),
	}
	if strings.HasPrefix(ref, "prod_") {
		priceData.Product = stripe.String(ref)
	} else {
		priceData.ProductData = &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(pkg.Name),
		}
	}
	item.PriceData = priceData
	return item
}

func toDomainSession(session *stripe.CheckoutSession) *domain.CheckoutSession {
	metadata := make(map[string]string, len(session.Metadata))
	for k, v := range session.Metadata {
		metadata[k] = v
	}
	return &domain.CheckoutSession{
		ID:                session.ID,
		URL:               session.URL,
		ClientReferenceID: session.ClientReferenceID,
		PaymentStatus:     domain.PaymentStatus(session.PaymentStatus),
		Metadata:          metadata,
	}
}

func translateError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, stripeErr.Msg)
		}
		return fmt.Errorf("%w: stripe returned status %d: %s", ErrProviderUnavailable, stripeErr.HTTPStatusCode, stripeErr.Msg)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

// slogLeveledLogger routes stripe-go's internal logging into slog.
type slogLeveledLogger struct {
	logger *slog.Logger
}

func (l *slogLeveledLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *slogLeveledLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *slogLeveledLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *slogLeveledLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "stripe")
}
