package service

import (
	"github.com/fairyhunter13/coupon-dispenser/internal/catalog"
	"github.com/fairyhunter13/coupon-dispenser/internal/model"
)

// Selector hands out catalog coupons in round-robin order.
// It is not safe for concurrent use; Dispenser serializes access.
type Selector struct {
	catalog *catalog.Catalog
	cursor  int
}

// NewSelector creates a Selector positioned at the first coupon.
func NewSelector(c *catalog.Catalog) *Selector {
	return &Selector{catalog: c}
}

// Next returns the coupon under the cursor and advances the cursor, wrapping at
// the end of the catalog. ok is false when the catalog is empty.
func (s *Selector) Next() (coupon model.Coupon, ok bool) {
	n := s.catalog.Len()
	if n == 0 {
		return model.Coupon{}, false
	}
	coupon = s.catalog.At(s.cursor)
	s.cursor = (s.cursor + 1) % n
	return coupon, true
}

// Peek returns the coupon Next would return, without advancing.
func (s *Selector) Peek() (coupon model.Coupon, ok bool) {
	if s.catalog.Len() == 0 {
		return model.Coupon{}, false
	}
	return s.catalog.At(s.cursor), true
}

// Cursor returns the index of the next coupon.
func (s *Selector) Cursor() int {
	return s.cursor
}
