/**
 * @description
 * Domain models for credit packages, checkout sessions, and the credit ledger.
 */
package domain

import "time"

// PaymentStatus mirrors the provider-side settlement state of a checkout session.
type PaymentStatus string

const (
	PaymentStatusUnpaid            PaymentStatus = "unpaid"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusNoPaymentRequired PaymentStatus = "no_payment_required"
)

// Metadata keys written onto checkout sessions.
const (
	MetadataUserID        = "userId"
	MetadataCreditsAmount = "creditsAmount"
	MetadataPackageID     = "packageId"
)

// CreditPurchaseDescription is the ledger description for credits bought through checkout.
const CreditPurchaseDescription = "credit purchase"

// CreditPackage is a purchasable credit tier from the catalog.
type CreditPackage struct {
	ID                 string `json:"id" yaml:"id"`
	Name               string `json:"name" yaml:"name"`
	CreditAmount       int64  `json:"creditAmount" yaml:"credit_amount"`
	PriceMinorUnits    int64  `json:"priceMinorUnits" yaml:"price_minor_units"`
	Currency           string `json:"currency" yaml:"currency"`
	ProviderProductRef string `json:"-" yaml:"provider_product_ref"`
}

// CheckoutRequest carries everything needed to open a hosted checkout session.
type CheckoutRequest struct {
	UserID     string
	Package    CreditPackage
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the provider's view of a hosted checkout.
type CheckoutSession struct {
	ID                string
	URL               string
	ClientReferenceID string
	PaymentStatus     PaymentStatus
	Metadata          map[string]string
}

// Owner returns the user the session was created for.
func (s CheckoutSession) Owner() string {
	if owner := s.Metadata[MetadataUserID]; owner != "" {
		return owner
	}
	return s.ClientReferenceID
}

// CreditTransaction is an append-only ledger row.
type CreditTransaction struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Amount            int64     `json:"amount"`
	Description       string    `json:"description"`
	CreatedAt         time.Time `json:"createdAt"`
	ProviderSessionID *string   `json:"providerSessionId"`
}

// ProfileBalance is the cached credit balance on a user profile.
type ProfileBalance struct {
	UserID  string `json:"userId"`
	Credits int64  `json:"credits"`
}

// CreditGrant describes a settled purchase to be written to the ledger.
type CreditGrant struct {
	UserID            string
	Amount            int64
	Description       string
	ProviderSessionID string
}

// GrantResult is returned by the store after an atomic grant attempt.
type GrantResult struct {
	Transaction      CreditTransaction
	PreviousBalance  int64
	NewBalance       int64
	AlreadyProcessed bool
}

// VerificationOutcome tags the result of a payment verification.
type VerificationOutcome string

const (
	OutcomeGranted          VerificationOutcome = "granted"
	OutcomeAlreadyProcessed VerificationOutcome = "already_processed"
	OutcomeNotSettled       VerificationOutcome = "not_settled"
)

// VerificationResult is the non-error result of verifying a checkout session.
type VerificationResult struct {
	Outcome         VerificationOutcome
	PaymentStatus   PaymentStatus
	CreditsAdded    int64
	PreviousBalance int64
	NewBalance      int64
	Transaction     *CreditTransaction
}

// BalanceDrift reports a profile whose cached balance disagrees with its ledger.
type BalanceDrift struct {
	UserID        string `json:"userId"`
	CachedCredits int64  `json:"cachedCredits"`
	LedgerCredits int64  `json:"ledgerCredits"`
}

// ReconciliationReport summarizes a ledger reconciliation run.
type ReconciliationReport struct {
	CheckedAt time.Time      `json:"checkedAt"`
	Drifts    []BalanceDrift `json:"drifts"`
}
