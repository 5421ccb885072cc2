/**
 * @description
 * Core business logic for credit purchases: opening checkout sessions, verifying
 * settled payments, and granting credits exactly once per session.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/domain"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/metrics"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/store"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/pkg/rabbitmq"
	"github.com/TheSkyfred/confito-57d2c83e-sub002/pkg/stripeclient"
)

const (
	defaultTransactionsLimit = 20
	maxTransactionsLimit     = 100
	defaultReconcileLimit    = 500
	maxReconcileLimit        = 5000
)

// Repository defines the storage operations the service needs.
type Repository interface {
	FindTransactionBySessionID(ctx context.Context, sessionID string) (*domain.CreditTransaction, error)
	ListTransactionsByUserID(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
	GrantPurchasedCredits(ctx context.Context, grant domain.CreditGrant) (*domain.GrantResult, error)
	GetProfileBalance(ctx context.Context, userID string) (*domain.ProfileBalance, error)
	FindBalanceDrift(ctx context.Context, limit int) ([]domain.BalanceDrift, error)
}

// PaymentProvider defines the hosted checkout operations.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error)
}

// PackageCatalog resolves purchasable credit packages.
type PackageCatalog interface {
	Version() string
	Resolve(packageID string) (domain.CreditPackage, bool)
	List() []domain.CreditPackage
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Options carries the service settings that come from configuration.
type Options struct {
	AppBaseURL     string
	EventsExchange string
}

// Service provides the business logic for credit purchases.
type Service struct {
	repo      Repository
	provider  PaymentProvider
	catalog   PackageCatalog
	publisher EventPublisher
	logger    *slog.Logger
	opts      Options
}

// NewService creates a new credits service.
func NewService(repo Repository, provider PaymentProvider, catalog PackageCatalog, publisher EventPublisher, logger *slog.Logger, opts Options) Service {
	if logger == nil {
		logger = slog.Default()
	}
	opts.AppBaseURL = strings.TrimSuffix(strings.TrimSpace(opts.AppBaseURL), "/")
	if opts.EventsExchange == "" {
		opts.EventsExchange = "confito.events"
	}
	return Service{repo: repo, provider: provider, catalog: catalog, publisher: publisher, logger: logger, opts: opts}
}

// PackageListing is the catalog as served to the display layer.
type PackageListing struct {
	Version  string
	Packages []domain.CreditPackage
}

// ListPackages returns the catalog version and its packages.
func (s Service) ListPackages() PackageListing {
	return PackageListing{Version: s.catalog.Version(), Packages: s.catalog.List()}
}

// CreateCheckout opens a hosted checkout session for a catalog package.
func (s Service) CreateCheckout(ctx context.Context, userID, packageID string) (*domain.CheckoutSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(packageID) == "" {
		return nil, fmt.Errorf("%w: packageId is required", ErrInvalidRequest)
	}

	pkg, ok := s.catalog.Resolve(packageID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, packageID)
	}

	session, err := s.provider.CreateCheckoutSession(ctx, domain.CheckoutRequest{
		UserID:     userID,
		Package:    pkg,
		SuccessURL: s.opts.AppBaseURL + "/payment-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.opts.AppBaseURL + "/payment-canceled",
	})
	if err != nil {
		s.logger.Error("failed to create checkout session", "user_id", userID, "package_id", pkg.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	metrics.CheckoutSessionsCreated.WithLabelValues(pkg.ID).Inc()
	s.logger.Info("checkout session created", "user_id", userID, "package_id", pkg.ID, "session_id", session.ID)
	return session, nil
}

// VerifyPayment checks a checkout session with the provider and grants its credits
// if the payment settled and the session has not been granted before.
func (s Service) VerifyPayment(ctx context.Context, userID, sessionID string) (*domain.VerificationResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrInvalidRequest)
	}

	session, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, stripeclient.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		s.logger.Error("failed to retrieve checkout session", "user_id", userID, "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	owner := session.Owner()
	if owner != "" && owner != userID {
		s.logger.Warn("checkout session verified by another user", "user_id", userID, "session_id", sessionID)
		return nil, ErrSessionOwnerMismatch
	}

	if session.PaymentStatus != domain.PaymentStatusPaid {
		metrics.PaymentVerifications.WithLabelValues(string(domain.OutcomeNotSettled)).Inc()
		return &domain.VerificationResult{
			Outcome:       domain.OutcomeNotSettled,
			PaymentStatus: session.PaymentStatus,
		}, nil
	}

	existing, err := s.repo.FindTransactionBySessionID(ctx, sessionID)
	switch {
	case err == nil:
		metrics.PaymentVerifications.WithLabelValues(string(domain.OutcomeAlreadyProcessed)).Inc()
		return &domain.VerificationResult{
			Outcome:       domain.OutcomeAlreadyProcessed,
			PaymentStatus: session.PaymentStatus,
			Transaction:   existing,
		}, nil
	case !errors.Is(err, store.ErrTransactionNotFound):
		s.logger.Error("failed to look up ledger", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	if owner == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidSessionMetadata, domain.MetadataUserID)
	}
	credits, err := parseCreditsAmount(session.Metadata[domain.MetadataCreditsAmount])
	if err != nil {
		s.logger.Error("paid session has unusable metadata", "session_id", sessionID, "error", err)
		return nil, err
	}

	grant, err := s.repo.GrantPurchasedCredits(ctx, domain.CreditGrant{
		UserID:            userID,
		Amount:            credits,
		Description:       domain.CreditPurchaseDescription,
		ProviderSessionID: sessionID,
	})
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			return nil, ErrProfileNotFound
		}
		s.logger.Error("failed to grant credits", "user_id", userID, "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	if grant.AlreadyProcessed {
		metrics.PaymentVerifications.WithLabelValues(string(domain.OutcomeAlreadyProcessed)).Inc()
		return &domain.VerificationResult{
			Outcome:       domain.OutcomeAlreadyProcessed,
			PaymentStatus: session.PaymentStatus,
			Transaction:   &grant.Transaction,
		}, nil
	}

	metrics.PaymentVerifications.WithLabelValues(string(domain.OutcomeGranted)).Inc()
	metrics.CreditsGranted.Add(float64(credits))
	s.logger.Info("credits granted", "user_id", userID, "session_id", sessionID, "credits", credits, "new_balance", grant.NewBalance)

	s.publishEvent(ctx, rabbitmq.RoutingKeyCreditsPurchased, creditsPurchasedEvent{
		UserID:          userID,
		SessionID:       sessionID,
		PackageID:       session.Metadata[domain.MetadataPackageID],
		TransactionID:   grant.Transaction.ID,
		CreditsAdded:    credits,
		PreviousBalance: grant.PreviousBalance,
		NewBalance:      grant.NewBalance,
		Timestamp:       time.Now().UTC(),
	})

	return &domain.VerificationResult{
		Outcome:         domain.OutcomeGranted,
		PaymentStatus:   session.PaymentStatus,
		CreditsAdded:    credits,
		PreviousBalance: grant.PreviousBalance,
		NewBalance:      grant.NewBalance,
		Transaction:     &grant.Transaction,
	}, nil
}

func parseCreditsAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidSessionMetadata, domain.MetadataCreditsAmount)
	}
	credits, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrInvalidSessionMetadata, domain.MetadataCreditsAmount)
	}
	if credits <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidSessionMetadata, domain.MetadataCreditsAmount)
	}
	return credits, nil
}

// GetBalance returns the caller's cached credit balance.
func (s Service) GetBalance(ctx context.Context, userID string) (*domain.ProfileBalance, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	balance, err := s.repo.GetProfileBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return balance, nil
}

// ListTransactions returns the caller's ledger rows, newest first.
func (s Service) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	if limit <= 0 {
		limit = defaultTransactionsLimit
	}
	if limit > maxTransactionsLimit {
		limit = maxTransactionsLimit
	}
	return s.repo.ListTransactionsByUserID(ctx, userID, limit)
}

// ReconcileLedger reports profiles whose cached balance differs from their ledger sum.
// Drift is reported, never corrected.
func (s Service) ReconcileLedger(ctx context.Context, limit int) (*domain.ReconciliationReport, error) {
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	if limit > maxReconcileLimit {
		limit = maxReconcileLimit
	}

	drifts, err := s.repo.FindBalanceDrift(ctx, limit)
	if err != nil {
		return nil, err
	}
	if drifts == nil {
		drifts = []domain.BalanceDrift{}
	}

	report := &domain.ReconciliationReport{CheckedAt: time.Now().UTC(), Drifts: drifts}
	metrics.LedgerBalanceDrift.Set(float64(len(drifts)))

	if len(drifts) > 0 {
		s.publishEvent(ctx, rabbitmq.RoutingKeyLedgerDriftDetected, ledgerDriftEvent{
			CheckedAt: report.CheckedAt,
			Drifts:    drifts,
		})
	}

	return report, nil
}

type creditsPurchasedEvent struct {
	UserID          string    `json:"user_id"`
	SessionID       string    `json:"session_id"`
	PackageID       string    `json:"package_id,omitempty"`
	TransactionID   string    `json:"transaction_id"`
	CreditsAdded    int64     `json:"credits_added"`
	PreviousBalance int64     `json:"previous_balance"`
	NewBalance      int64     `json:"new_balance"`
	Timestamp       time.Time `json:"timestamp"`
}

type ledgerDriftEvent struct {
	CheckedAt time.Time             `json:"checked_at"`
	Drifts    []domain.BalanceDrift `json:"drifts"`
}

func (s Service) publishEvent(ctx context.Context, routingKey string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, s.opts.EventsExchange, routingKey, payload); err != nil {
		s.logger.Warn("failed to publish event", "routing_key", routingKey, "error", err)
	}
}
