// Package job holds runner-side policies shared by the job service: lease bounds and availability
// notifications.
package job

import (
	"errors"
	"time"
)

// Lease bounds applied by LeasePolicy.
const (
	MinLease = time.Second
	MaxLease = 15 * time.Minute
)

// ErrInvalidDefaultLease indicates the configured default lease is outside [MinLease, MaxLease].
var ErrInvalidDefaultLease = errors.New("default lease must be between 1s and 15m")

// LeaseSource identifies how a lease duration was resolved.
type LeaseSource string

const (
	// LeaseSourceExplicit indicates the caller's duration was used as is.
	LeaseSourceExplicit LeaseSource = "explicit"
	// LeaseSourceDefault indicates the request was zero and the default was used.
	LeaseSourceDefault LeaseSource = "default"
	// LeaseSourceClamped indicates the request fell outside the bounds and was clamped.
	LeaseSourceClamped LeaseSource = "clamped"
)

// LeasePolicy normalises the lease of reservations and heartbeats.
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy with the provided default lease.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease < MinLease || defaultLease > MaxLease {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease.Truncate(time.Second)}, nil
}

// Default returns the configured default lease.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// LeaseDecision is the outcome of resolving one lease request.
type LeaseDecision struct {
	Lease     time.Duration
	Source    LeaseSource
	Requested time.Duration
}

// UsedDefault reports whether the policy fell back to the default lease.
func (d LeaseDecision) UsedDefault() bool { return d.Source == LeaseSourceDefault }

// Clamped reports whether the request was clamped into bounds.
func (d LeaseDecision) Clamped() bool { return d.Source == LeaseSourceClamped }

// Resolve returns the lease to apply for request, in whole seconds.
func (p *LeasePolicy) Resolve(request time.Duration) LeaseDecision {
	d := LeaseDecision{Requested: request}
	switch {
	case p == nil:
		d.Lease, d.Source = MinLease, LeaseSourceDefault
	case request == 0:
		d.Lease, d.Source = p.defaultLease, LeaseSourceDefault
	case request < MinLease:
		d.Lease, d.Source = MinLease, LeaseSourceClamped
	case request > MaxLease:
		d.Lease, d.Source = MaxLease, LeaseSourceClamped
	default:
		d.Lease, d.Source = request.Truncate(time.Second), LeaseSourceExplicit
	}
	return d
}
