package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-dispenser/internal/catalog"
	"github.com/fairyhunter13/coupon-dispenser/internal/ledger"
	"github.com/fairyhunter13/coupon-dispenser/internal/model"
	"github.com/fairyhunter13/coupon-dispenser/internal/stats"
)

// DefaultCooldown is how long an identity must wait between claims.
const DefaultCooldown = time.Hour

// StatsRecorder receives claim and eligibility outcomes.
type StatsRecorder interface {
	Record(ctx context.Context, ev stats.Event) error
}

// JournalRepositoryInterface defines the write side of the claim journal.
type JournalRepositoryInterface interface {
	Insert(ctx context.Context, entry *model.JournalEntry) error
}

// ClaimResult is returned by Claim. The tracker fields are populated even when
// Claim fails so a freshly issued tracker can still be handed to the client.
type ClaimResult struct {
	Coupon        *model.Coupon
	TrackerID     string
	TrackerIssued bool
}

// EligibilityResult is returned by Eligibility.
type EligibilityResult struct {
	Eligibility
	// NextCoupon is advisory: a concurrent claim may take it first.
	NextCoupon *model.Coupon
}

// Dispenser owns the catalog cursor and the claim ledger.
// Claims are serialized so each successful claim gets a distinct cursor step.
type Dispenser struct {
	mu       sync.Mutex
	catalog  *catalog.Catalog
	selector *Selector
	ledger   *ledger.Ledger

	now          func() time.Time
	newTrackerID func() string
	stats        StatsRecorder
	journal      JournalRepositoryInterface
}

// Option configures a Dispenser.
type Option func(*Dispenser)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispenser) { d.now = now }
}

// WithTrackerIDFunc overrides tracker id generation.
func WithTrackerIDFunc(fn func() string) Option {
	return func(d *Dispenser) { d.newTrackerID = fn }
}

// WithStats sets the outcome recorder.
func WithStats(s StatsRecorder) Option {
	return func(d *Dispenser) { d.stats = s }
}

// WithJournal sets the claim journal.
func WithJournal(j JournalRepositoryInterface) Option {
	return func(d *Dispenser) { d.journal = j }
}

// NewDispenser creates a Dispenser over the given catalog and ledger.
func NewDispenser(c *catalog.Catalog, l *ledger.Ledger, opts ...Option) *Dispenser {
	d := &Dispenser{
		catalog:      c,
		selector:     NewSelector(c),
		ledger:       l,
		now:          time.Now,
		newTrackerID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Coupons returns the full catalog in distribution order.
func (d *Dispenser) Coupons() []model.Coupon {
	return d.catalog.All()
}

// Eligibility evaluates ip/trackerID without recording a claim or moving the cursor.
func (d *Dispenser) Eligibility(ctx context.Context, ip, trackerID string) EligibilityResult {
	d.mu.Lock()
	now := d.now()
	res := EligibilityResult{Eligibility: Evaluate(now, ip, trackerID, d.ledger)}
	if next, ok := d.selector.Peek(); ok {
		res.NextCoupon = &next
	}
	d.mu.Unlock()

	ev := stats.Event{Op: stats.OpEligibility, Outcome: stats.OutcomeEligible, At: now}
	if !res.Eligible {
		ev.Outcome = stats.OutcomeIneligible
		ev.Axis = string(res.Axis)
	}
	d.record(ctx, ev)

	return res
}

// Claim hands the next coupon to ip/trackerID.
// An empty trackerID gets a new one; see ClaimResult.
// Returns:
//   - *RateLimitedError (matches ErrRateLimited) when either identity claimed within the cooldown
//   - ErrNoCouponsAvailable when the catalog is empty
func (d *Dispenser) Claim(ctx context.Context, ip, trackerID string) (ClaimResult, error) {
	res := ClaimResult{TrackerID: trackerID}
	if trackerID == "" {
		res.TrackerID = d.newTrackerID()
		res.TrackerIssued = true
	}

	coupon, at, err := d.claim(ip, res.TrackerID)
	d.record(ctx, claimEvent(coupon, at, err))
	if err != nil {
		return res, err
	}

	res.Coupon = &coupon
	d.writeJournal(ctx, &model.JournalEntry{
		CouponID:   coupon.ID,
		CouponCode: coupon.Code,
		ClientIP:   ip,
		TrackerID:  res.TrackerID,
		ClaimedAt:  at,
	})
	return res, nil
}

// claim is the critical section: evaluate, select, record.
func (d *Dispenser) claim(ip, trackerID string) (model.Coupon, time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	if e := Evaluate(now, ip, trackerID, d.ledger); !e.Eligible {
		return model.Coupon{}, now, &RateLimitedError{Remaining: e.Remaining, Axis: e.Axis}
	}

	coupon, ok := d.selector.Next()
	if !ok {
		return model.Coupon{}, now, ErrNoCouponsAvailable
	}

	d.ledger.Record(ip, trackerID, now)
	return coupon, now, nil
}

func claimEvent(coupon model.Coupon, at time.Time, err error) stats.Event {
	ev := stats.Event{Op: stats.OpClaim, At: at}

	var rl *RateLimitedError
	switch {
	case err == nil:
		ev.Outcome = stats.OutcomeClaimed
		ev.CouponCode = coupon.Code
	case errors.As(err, &rl):
		ev.Outcome = stats.OutcomeRateLimited
		ev.Axis = string(rl.Axis)
	default:
		ev.Outcome = stats.OutcomeNoCoupons
	}
	return ev
}

func (d *Dispenser) record(ctx context.Context, ev stats.Event) {
	if d.stats == nil {
		return
	}
	if err := d.stats.Record(ctx, ev); err != nil {
		log.Warn().Err(err).Str("op", string(ev.Op)).Str("outcome", string(ev.Outcome)).Msg("failed to record stats")
	}
}

func (d *Dispenser) writeJournal(ctx context.Context, entry *model.JournalEntry) {
	if d.journal == nil {
		return
	}
	if err := d.journal.Insert(ctx, entry); err != nil {
		log.Error().
			Err(err).
			Str("coupon_code", entry.CouponCode).
			Str("client_ip", entry.ClientIP).
			Msg("failed to write claim journal")
	}
}
