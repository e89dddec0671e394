package service

import (
	"time"

	"github.com/fairyhunter13/coupon-dispenser/internal/ledger"
)

// Eligibility is the verdict for one (ip, tracker) pair at a point in time.
type Eligibility struct {
	Eligible bool
	// Remaining is whole seconds until eligible, rounded up. Zero when eligible.
	Remaining int
	// Axis is the identity key that blocked the client, empty when eligible.
	Axis ledger.Axis
}

// Evaluate decides whether ip/trackerID may claim at now.
// The IP axis is checked before the tracker axis, and Remaining reflects the
// first axis that blocks. An empty trackerID skips the tracker axis.
func Evaluate(now time.Time, ip, trackerID string, l *ledger.Ledger) Eligibility {
	if d := l.Remaining(ledger.AxisIP, ip, now); d > 0 {
		return Eligibility{Remaining: ceilSeconds(d), Axis: ledger.AxisIP}
	}
	if trackerID != "" {
		if d := l.Remaining(ledger.AxisCookie, trackerID, now); d > 0 {
			return Eligibility{Remaining: ceilSeconds(d), Axis: ledger.AxisCookie}
		}
	}
	return Eligibility{Eligible: true}
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
