// Package catalog holds the fixed, ordered list of coupons handed out by the dispenser.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/coupon-dispenser/internal/model"
)

// ErrDuplicateID is returned when two catalog entries share an id.
var ErrDuplicateID = errors.New("duplicate coupon id")

// Catalog is an ordered, read-only list of coupons.
// Order is fixed at construction; round-robin distribution depends on it.
type Catalog struct {
	coupons []model.Coupon
}

// New creates a Catalog from the given coupons. The slice is copied.
func New(coupons []model.Coupon) *Catalog {
	c := make([]model.Coupon, len(coupons))
	copy(c, coupons)
	return &Catalog{coupons: c}
}

// Len returns the number of coupons.
func (c *Catalog) Len() int {
	return len(c.coupons)
}

// At returns the coupon at index i.
func (c *Catalog) At(i int) model.Coupon {
	return c.coupons[i]
}

// All returns a copy of every coupon in catalog order.
// The result is never nil so it encodes as [] rather than null.
func (c *Catalog) All() []model.Coupon {
	out := make([]model.Coupon, len(c.coupons))
	copy(out, c.coupons)
	return out
}

// Default returns the built-in catalog with expiry dates relative to now.
func Default(now time.Time) *Catalog {
	day := 24 * time.Hour
	return New([]model.Coupon{
		{ID: "1", Code: "SAVE20", Discount: 20, Description: "Save 20% on your next purchase", ExpiresAt: now.Add(30 * day)},
		{ID: "2", Code: "FREESHIP", Discount: 100, Description: "Free shipping on orders over $50", ExpiresAt: now.Add(15 * day)},
		{ID: "3", Code: "SUMMER25", Discount: 25, Description: "Summer sale discount on all items", ExpiresAt: now.Add(45 * day)},
		{ID: "4", Code: "WELCOME10", Discount: 10, Description: "Welcome discount for new customers", ExpiresAt: now.Add(60 * day)},
		{ID: "5", Code: "WELCOME11", Discount: 19, Description: "Welcome discount for new customers", ExpiresAt: now.Add(60 * day)},
		{ID: "6", Code: "WELCOME12", Discount: 155, Description: "Welcome discount for new customers", ExpiresAt: now.Add(60 * day)},
	})
}

// file is the on-disk YAML layout.
type file struct {
	Coupons []entry `yaml:"coupons" validate:"dive"`
}

// entry is one coupon in a catalog file. Exactly one of ExpiresAt or ValidFor
// should be set; ExpiresAt wins when both are present.
type entry struct {
	ID          string     `yaml:"id" validate:"required,notblank,max=64"`
	Code        string     `yaml:"code" validate:"required,notblank,max=64"`
	Discount    float64    `yaml:"discount"`
	Description string     `yaml:"description" validate:"max=255"`
	ExpiresAt   *time.Time `yaml:"expires_at"`
	ValidFor    string     `yaml:"valid_for" validate:"omitempty,duration"`
}

// Load reads a YAML catalog file. See Parse.
func Load(path string, v *validator.Validate, now time.Time) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data, v, now)
}

// Parse decodes and validates a YAML catalog document.
// Entries with valid_for get ExpiresAt = now + valid_for. An empty coupon list is
// allowed and yields an empty catalog.
func Parse(data []byte, v *validator.Validate, now time.Time) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := v.Struct(f); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Coupons))
	coupons := make([]model.Coupon, 0, len(f.Coupons))
	for i, e := range f.Coupons {
		id := strings.TrimSpace(e.ID)
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("entry %d: %w: %s", i, ErrDuplicateID, id)
		}
		seen[id] = struct{}{}

		expiresAt, err := e.expiry(now)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, id, err)
		}

		coupons = append(coupons, model.Coupon{
			ID:          id,
			Code:        strings.TrimSpace(e.Code),
			Discount:    e.Discount,
			Description: e.Description,
			ExpiresAt:   expiresAt,
		})
	}

	return New(coupons), nil
}

func (e entry) expiry(now time.Time) (time.Time, error) {
	if e.ExpiresAt != nil {
		return *e.ExpiresAt, nil
	}
	if e.ValidFor == "" {
		return time.Time{}, errors.New("one of expires_at or valid_for is required")
	}
	d, err := time.ParseDuration(e.ValidFor)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse valid_for: %w", err)
	}
	return now.Add(d), nil
}
