// Package ledger records when each client identity last claimed a coupon.
//
// Two independent axes are tracked: the client IP and the tracker cookie id.
// Entries older than the cooldown never block a client; they are removed when
// read and by Sweep.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Axis identifies one of the two identity keys.
type Axis string

const (
	AxisIP     Axis = "ip"
	AxisCookie Axis = "cookie"
)

// Ledger is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	cooldown time.Duration
	byIP     map[string]time.Time
	byCookie map[string]time.Time
}

// New creates an empty Ledger with the given cooldown window.
func New(cooldown time.Duration) *Ledger {
	return &Ledger{
		cooldown: cooldown,
		byIP:     make(map[string]time.Time),
		byCookie: make(map[string]time.Time),
	}
}

// Cooldown returns the window configured at construction.
func (l *Ledger) Cooldown() time.Duration {
	return l.cooldown
}

// Remaining returns how long key on axis stays blocked at now.
// Zero means not blocked. An expired entry is deleted.
func (l *Ledger) Remaining(axis Axis, key string, now time.Time) time.Duration {
	if key == "" {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	m := l.table(axis)
	last, ok := m[key]
	if !ok {
		return 0
	}

	elapsed := now.Sub(last)
	if elapsed < l.cooldown {
		return l.cooldown - elapsed
	}
	delete(m, key)
	return 0
}

// Record stores at as the last claim time for ip and cookieID, overwriting
// older entries. Empty keys are ignored.
func (l *Ledger) Record(ip, cookieID string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ip != "" {
		l.byIP[ip] = at
	}
	if cookieID != "" {
		l.byCookie[cookieID] = at
	}
}

// Sweep deletes every entry whose cooldown has passed at now and returns how
// many were removed.
func (l *Ledger) Sweep(now time.Time) int {
	cutoff := now.Add(-l.cooldown)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, m := range []map[string]time.Time{l.byIP, l.byCookie} {
		for k, last := range m {
			if !last.After(cutoff) {
				delete(m, k)
				removed++
			}
		}
	}
	return removed
}

// Len returns the number of entries held per axis.
func (l *Ledger) Len() (ips, cookies int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byIP), len(l.byCookie)
}

// StartJanitor runs Sweep every interval until ctx is cancelled.
// A non-positive interval disables the janitor.
func (l *Ledger) StartJanitor(ctx context.Context, every time.Duration, now func() time.Time) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := l.Sweep(now()); n > 0 {
					ips, cookies := l.Len()
					log.Debug().
						Int("removed", n).
						Int("ip_entries", ips).
						Int("cookie_entries", cookies).
						Msg("ledger sweep")
				}
			}
		}
	}()
}

func (l *Ledger) table(axis Axis) map[string]time.Time {
	if axis == AxisCookie {
		return l.byCookie
	}
	return l.byIP
}
