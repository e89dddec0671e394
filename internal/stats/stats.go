// Package stats records claim and eligibility outcomes.
//
// Recording is best-effort: callers log a failed Record and carry on.
// Keep label cardinality bounded; client IPs and tracker ids are never recorded.
package stats

import (
	"context"
	"errors"
	"time"
)

// Op is the operation that produced an event.
type Op string

const (
	OpClaim       Op = "claim"
	OpEligibility Op = "eligibility"
)

// Outcome is the result of an operation.
type Outcome string

const (
	OutcomeClaimed     Outcome = "claimed"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeNoCoupons   Outcome = "no_coupons"
	OutcomeEligible    Outcome = "eligible"
	OutcomeIneligible  Outcome = "ineligible"
)

// Event describes one claim attempt or eligibility check.
type Event struct {
	Op      Op
	Outcome Outcome
	// Axis is the identity axis that blocked the client, if any.
	Axis string
	// CouponCode is set for dispensed coupons.
	CouponCode string
	At         time.Time
}

// Store persists events.
type Store interface {
	Record(ctx context.Context, ev Event) error
}

// Multi fans an event out to every store and joins their errors.
type Multi []Store

// Record implements Store.
func (m Multi) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
