package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/coupon-dispenser/internal/model"
)

// JournalPoolInterface defines the database operations needed by JournalRepository.
type JournalPoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// JournalRepository appends dispensed coupons to the claim_journal table.
// The journal is write-only from the dispenser's point of view: eligibility is
// decided from in-memory state and never from these rows.
type JournalRepository struct {
	pool JournalPoolInterface
}

// NewJournalRepository creates a new JournalRepository with the given pool.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

// NewJournalRepositoryWithPool creates a new JournalRepository with a custom pool interface.
// This is primarily used for testing.
func NewJournalRepositoryWithPool(pool JournalPoolInterface) *JournalRepository {
	return &JournalRepository{pool: pool}
}

// Insert appends one journal entry.
func (r *JournalRepository) Insert(ctx context.Context, entry *model.JournalEntry) error {
	query := `INSERT INTO claim_journal (coupon_id, coupon_code, client_ip, tracker_id, claimed_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query,
		entry.CouponID, entry.CouponCode, entry.ClientIP, entry.TrackerID, entry.ClaimedAt)
	if err != nil {
		return fmt.Errorf("insert journal entry for coupon %s: %w", entry.CouponCode, err)
	}
	return nil
}
