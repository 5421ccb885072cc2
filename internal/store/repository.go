/**
 * @description
 * This file defines the `Repository` interface, the contract for the credit ledger
 * and profile balance storage. Two implementations exist: PostgreSQL for production
 * and BoltDB for single-node deployments and local development.
 *
 * @dependencies
 * - context: Standard Go library.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/domain"
)

var (
	ErrProfileNotFound     = errors.New("profile not found")
	ErrTransactionNotFound = errors.New("credit transaction not found")
)

// Repository defines the set of methods for interacting with the ledger store.
type Repository interface {
	// Ledger methods
	FindTransactionBySessionID(ctx context.Context, sessionID string) (*domain.CreditTransaction, error)
	ListTransactionsByUserID(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
	// GrantPurchasedCredits appends the ledger row and increments the cached balance in one
	// storage transaction. When a row for the same provider session already exists nothing is
	// written and the existing row is returned with AlreadyProcessed set.
	GrantPurchasedCredits(ctx context.Context, grant domain.CreditGrant) (*domain.GrantResult, error)

	// Profile methods
	GetProfileBalance(ctx context.Context, userID string) (*domain.ProfileBalance, error)
	CreateProfile(ctx context.Context, userID string) (bool, error)

	// Reconciliation
	FindBalanceDrift(ctx context.Context, limit int) ([]domain.BalanceDrift, error)

	Close() error
}
