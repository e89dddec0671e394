package model

import "time"

// Coupon represents a coupon in the catalog
type Coupon struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Discount    float64   `json:"discount"`
	Description string    `json:"description"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ClaimResponse is the API response DTO for POST /claim
type ClaimResponse struct {
	ClaimedCoupon *Coupon `json:"claimedCoupon"`
}

// EligibilityResponse is the API response DTO for GET /eligibility.
// ClaimedCoupon is always null; the field is kept for client compatibility.
type EligibilityResponse struct {
	Eligible      bool    `json:"eligible"`
	Remaining     int     `json:"remaining"`
	ClaimedCoupon *Coupon `json:"claimedCoupon"`
	NextCoupon    *Coupon `json:"nextCoupon"`
}

// JournalEntry is one dispensed coupon as written to the claim journal
type JournalEntry struct {
	CouponID   string
	CouponCode string
	ClientIP   string
	TrackerID  string
	ClaimedAt  time.Time
}
