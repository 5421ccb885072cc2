/**
 * @description
 * PostgreSQL implementation of the credit ledger repository.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/domain"
)

const creditTransactionColumns = `id::text, user_id::text, amount, description, created_at, provider_session_id`

func isUndefinedTableError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// Malformed uuids are reported by Postgres as invalid_text_representation.
func isInvalidTextRepresentation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

// PostgresRepository is the PostgreSQL-backed ledger store.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new repository over an open pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Close releases the pool.
func (r *PostgresRepository) Close() error {
	r.db.Close()
	return nil
}

func scanCreditTransaction(row pgx.Row) (*domain.CreditTransaction, error) {
	var txn domain.CreditTransaction
	if err := row.Scan(
		&txn.ID,
		&txn.UserID,
		&txn.Amount,
		&txn.Description,
		&txn.CreatedAt,
		&txn.ProviderSessionID,
	); err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindTransactionBySessionID returns the ledger row recorded for a checkout session.
func (r *PostgresRepository) FindTransactionBySessionID(ctx context.Context, sessionID string) (*domain.CreditTransaction, error) {
	query := `SELECT ` + creditTransactionColumns + ` FROM credit_transactions WHERE provider_session_id = $1`
	txn, err := scanCreditTransaction(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		if isUndefinedTableError(err) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

// ListTransactionsByUserID returns a user's ledger rows, newest first.
func (r *PostgresRepository) ListTransactionsByUserID(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	query := `
		SELECT ` + creditTransactionColumns + `
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		if isInvalidTextRepresentation(err) {
			return []domain.CreditTransaction{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	transactions := []domain.CreditTransaction{}
	for rows.Next() {
		txn, err := scanCreditTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		if isInvalidTextRepresentation(err) {
			return []domain.CreditTransaction{}, nil
		}
		return nil, err
	}

	return transactions, nil
}

// GrantPurchasedCredits performs the ledger insert and balance increment atomically.
func (r *PostgresRepository) GrantPurchasedCredits(ctx context.Context, grant domain.CreditGrant) (*domain.GrantResult, error) {
	if grant.ProviderSessionID == "" {
		return nil, errors.New("provider session id is required")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var previous int64
	// Lock the profile row so concurrent grants for one user apply in order.
	err = tx.QueryRow(ctx, "SELECT credits FROM profiles WHERE id = $1 FOR UPDATE", grant.UserID).Scan(&previous)
	if err != nil {
		if err == pgx.ErrNoRows || isInvalidTextRepresentation(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	insert := `
		INSERT INTO credit_transactions (id, user_id, amount, description, provider_session_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_session_id) DO NOTHING
		RETURNING ` + creditTransactionColumns
	inserted, err := scanCreditTransaction(tx.QueryRow(ctx, insert,
		uuid.NewString(),
		grant.UserID,
		grant.Amount,
		grant.Description,
		grant.ProviderSessionID,
	))
	if err != nil {
		if err != pgx.ErrNoRows {
			return nil, err
		}
		// Another request recorded this session first.
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return nil, rbErr
		}
		existing, findErr := r.FindTransactionBySessionID(ctx, grant.ProviderSessionID)
		if findErr != nil {
			return nil, fmt.Errorf("load existing grant: %w", findErr)
		}
		return &domain.GrantResult{
			Transaction:      *existing,
			PreviousBalance:  previous,
			NewBalance:       previous,
			AlreadyProcessed: true,
		}, nil
	}

	var balance int64
	err = tx.QueryRow(ctx,
		"UPDATE profiles SET credits = credits + $1, updated_at = NOW() WHERE id = $2 RETURNING credits",
		grant.Amount, grant.UserID,
	).Scan(&balance)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &domain.GrantResult{
		Transaction:     *inserted,
		PreviousBalance: previous,
		NewBalance:      balance,
	}, nil
}

// GetProfileBalance returns the cached credit balance of a profile.
func (r *PostgresRepository) GetProfileBalance(ctx context.Context, userID string) (*domain.ProfileBalance, error) {
	balance := domain.ProfileBalance{UserID: userID}
	err := r.db.QueryRow(ctx, "SELECT credits FROM profiles WHERE id = $1", userID).Scan(&balance.Credits)
	if err != nil {
		if err == pgx.ErrNoRows || isInvalidTextRepresentation(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// CreateProfile inserts an empty profile if none exists.
func (r *PostgresRepository) CreateProfile(ctx context.Context, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx, "INSERT INTO profiles (id) VALUES ($1) ON CONFLICT (id) DO NOTHING", userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FindBalanceDrift lists profiles whose cached balance differs from the ledger sum.
func (r *PostgresRepository) FindBalanceDrift(ctx context.Context, limit int) ([]domain.BalanceDrift, error) {
	query := `
		SELECT p.id::text, p.credits, COALESCE(SUM(t.amount), 0)::BIGINT AS ledger_credits
		FROM profiles p
		LEFT JOIN credit_transactions t ON t.user_id = p.id
		GROUP BY p.id, p.credits
		HAVING p.credits <> COALESCE(SUM(t.amount), 0)
		ORDER BY p.id
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drifts := []domain.BalanceDrift{}
	for rows.Next() {
		var drift domain.BalanceDrift
		if err := rows.Scan(&drift.UserID, &drift.CachedCredits, &drift.LedgerCredits); err != nil {
			return nil, err
		}
		drifts = append(drifts, drift)
	}
	return drifts, rows.Err()
}
