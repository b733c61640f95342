// Package customer exposes the customer attributes the discount engine needs.
package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no customer matches the given ID.
var ErrNotFound = errors.New("customer not found")

// Profile holds the attributes coupon and promotion rules evaluate against.
type Profile struct {
	ID              string
	Group           string
	CreatedAt       time.Time
	CompletedOrders int
}

// AccountAge returns how long the account has existed as of now.
func (p *Profile) AccountAge(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// Repository provides customer attribute lookups.
type Repository interface {
	// GetProfile returns the profile for the given customer ID, including the
	// completed-order count. Returns ErrNotFound for unknown customers.
	GetProfile(ctx context.Context, id string) (*Profile, error)
}
