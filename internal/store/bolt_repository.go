/**
 * @description
 * Embedded single-file implementation of the ledger Repository, backed by bbolt.
 * Used for single-node deployments and local development (STORE_DRIVER=bolt).
 */
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/domain"
)

var (
	profilesBucket     = []byte("profiles")
	transactionsBucket = []byte("credit_transactions")
	// provider session id -> transaction id
	sessionIndexBucket = []byte("credit_transactions_by_session")
	// user id + 0x00 + transaction id -> empty
	userIndexBucket = []byte("credit_transactions_by_user")
)

type boltProfile struct {
	Credits   int64     `json:"credits"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BoltRepository is an embedded single-file ledger store. Every grant runs inside one
// read-write bolt transaction, and bolt allows a single writer at a time.
type BoltRepository struct {
	db *bolt.DB
}

// NewBoltRepository opens (or creates) a bolt database at path and ensures its buckets exist.
func NewBoltRepository(path string) (*BoltRepository, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{profilesBucket, transactionsBucket, sessionIndexBucket, userIndexBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltRepository{db: db}, nil
}

// Close releases the database file lock.
func (r *BoltRepository) Close() error {
	return r.db.Close()
}

func userIndexKey(userID, transactionID string) []byte {
	key := make([]byte, 0, len(userID)+1+len(transactionID))
	key = append(key, userID...)
	key = append(key, 0)
	return append(key, transactionID...)
}

func getTransaction(tx *bolt.Tx, id []byte) (*domain.CreditTransaction, error) {
	raw := tx.Bucket(transactionsBucket).Get(id)
	if raw == nil {
		return nil, ErrTransactionNotFound
	}
	var txn domain.CreditTransaction
	if err := json.Unmarshal(raw, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func getProfile(tx *bolt.Tx, userID string) (*boltProfile, error) {
	raw := tx.Bucket(profilesBucket).Get([]byte(userID))
	if raw == nil {
		return nil, ErrProfileNotFound
	}
	var profile boltProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func putProfile(tx *bolt.Tx, userID string, profile *boltProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return tx.Bucket(profilesBucket).Put([]byte(userID), data)
}

func (r *BoltRepository) FindTransactionBySessionID(ctx context.Context, sessionID string) (*domain.CreditTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var txn *domain.CreditTransaction
	err := r.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(sessionIndexBucket).Get([]byte(sessionID))
		if id == nil {
			return ErrTransactionNotFound
		}
		var err error
		txn, err = getTransaction(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *BoltRepository) ListTransactionsByUserID(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	transactions := []domain.CreditTransaction{}
	err := r.db.View(func(tx *bolt.Tx) error {
		prefix := userIndexKey(userID, "")
		c := tx.Bucket(userIndexBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			txn, err := getTransaction(tx, k[len(prefix):])
			if err != nil {
				return err
			}
			transactions = append(transactions, *txn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortNewestFirst(transactions)
	if limit > 0 && len(transactions) > limit {
		transactions = transactions[:limit]
	}
	return transactions, nil
}

// sortNewestFirst orders rows like the Postgres store: created_at DESC, id DESC.
func sortNewestFirst(transactions []domain.CreditTransaction) {
	sort.Slice(transactions, func(i, j int) bool {
		a, b := transactions[i], transactions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

func (r *BoltRepository) GrantPurchasedCredits(ctx context.Context, grant domain.CreditGrant) (*domain.GrantResult, error) {
	if grant.ProviderSessionID == "" {
		return nil, errors.New("provider session id is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result domain.GrantResult
	err := r.db.Update(func(tx *bolt.Tx) error {
		profile, err := getProfile(tx, grant.UserID)
		if err != nil {
			return err
		}
		result.PreviousBalance = profile.Credits

		sessions := tx.Bucket(sessionIndexBucket)
		if existingID := sessions.Get([]byte(grant.ProviderSessionID)); existingID != nil {
			existing, err := getTransaction(tx, existingID)
			if err != nil {
				return err
			}
			result.Transaction = *existing
			result.NewBalance = profile.Credits
			result.AlreadyProcessed = true
			return nil
		}

		newBalance := profile.Credits + grant.Amount
		if newBalance < 0 {
			return errors.New("credit balance cannot become negative")
		}

		sessionID := grant.ProviderSessionID
		now := time.Now().UTC()
		txn := domain.CreditTransaction{
			ID:                uuid.NewString(),
			UserID:            grant.UserID,
			Amount:            grant.Amount,
			Description:       grant.Description,
			CreatedAt:         now,
			ProviderSessionID: &sessionID,
		}
		data, err := json.Marshal(txn)
		if err != nil {
			return err
		}
		if err := tx.Bucket(transactionsBucket).Put([]byte(txn.ID), data); err != nil {
			return err
		}
		if err := sessions.Put([]byte(sessionID), []byte(txn.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(userIndexBucket).Put(userIndexKey(txn.UserID, txn.ID), []byte{}); err != nil {
			return err
		}

		profile.Credits = newBalance
		profile.UpdatedAt = now
		if err := putProfile(tx, grant.UserID, profile); err != nil {
			return err
		}

		result.Transaction = txn
		result.NewBalance = newBalance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *BoltRepository) GetProfileBalance(ctx context.Context, userID string) (*domain.ProfileBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var balance *domain.ProfileBalance
	err := r.db.View(func(tx *bolt.Tx) error {
		profile, err := getProfile(tx, userID)
		if err != nil {
			return err
		}
		balance = &domain.ProfileBalance{UserID: userID, Credits: profile.Credits}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

func (r *BoltRepository) CreateProfile(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	created := false
	err := r.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(profilesBucket).Get([]byte(userID)) != nil {
			return nil
		}
		now := time.Now().UTC()
		created = true
		return putProfile(tx, userID, &boltProfile{CreatedAt: now, UpdatedAt: now})
	})
	return created, err
}

func (r *BoltRepository) FindBalanceDrift(ctx context.Context, limit int) ([]domain.BalanceDrift, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	drifts := []domain.BalanceDrift{}
	err := r.db.View(func(tx *bolt.Tx) error {
		sums := make(map[string]int64)
		err := tx.Bucket(transactionsBucket).ForEach(func(_, v []byte) error {
			var txn domain.CreditTransaction
			if err := json.Unmarshal(v, &txn); err != nil {
				return err
			}
			sums[txn.UserID] += txn.Amount
			return nil
		})
		if err != nil {
			return err
		}

		// Keys are iterated in byte order, matching the Postgres ORDER BY id.
		return tx.Bucket(profilesBucket).ForEach(func(k, v []byte) error {
			if limit > 0 && len(drifts) >= limit {
				return nil
			}
			var profile boltProfile
			if err := json.Unmarshal(v, &profile); err != nil {
				return err
			}
			if ledger := sums[string(k)]; ledger != profile.Credits {
				drifts = append(drifts, domain.BalanceDrift{
					UserID:        string(k),
					CachedCredits: profile.Credits,
					LedgerCredits: ledger,
				})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return drifts, nil
}

// SetProfileCredits overwrites a cached balance without touching the ledger.
func (r *BoltRepository) SetProfileCredits(userID string, credits int64) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		profile, err := getProfile(tx, userID)
		if err != nil {
			return err
		}
		profile.Credits = credits
		profile.UpdatedAt = time.Now().UTC()
		return putProfile(tx, userID, profile)
	})
}
