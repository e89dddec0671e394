package service

import (
	"errors"
	"fmt"

	"github.com/fairyhunter13/coupon-dispenser/internal/ledger"
)

var (
	// ErrRateLimited matches any *RateLimitedError via errors.Is
	ErrRateLimited = errors.New("claim cooldown active")

	// ErrNoCouponsAvailable is returned when the catalog is empty
	ErrNoCouponsAvailable = errors.New("no coupons available")
)

// RateLimitedError is returned when the client claimed within the cooldown window.
type RateLimitedError struct {
	// Remaining is the number of whole seconds until the client may claim again.
	Remaining int
	// Axis is the identity key that blocked the claim.
	Axis ledger.Axis
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: blocked by %s, retry in %d seconds", ErrRateLimited, e.Axis, e.Remaining)
}

// Is reports whether target is ErrRateLimited.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
