package cart

import "time"

// StalenessPolicy decides whether cached recommendations are fresh enough
// to serve without re-scraping. Pure; the clock is injected for tests.
type StalenessPolicy struct {
	FreshFor time.Duration
	now      func() time.Time
}

// NewStalenessPolicy creates a policy with the given fresh window.
func NewStalenessPolicy(freshFor time.Duration) *StalenessPolicy {
	return &StalenessPolicy{FreshFor: freshFor, now: time.Now}
}

// WithClock overrides the clock; test hook.
func (p *StalenessPolicy) WithClock(now func() time.Time) *StalenessPolicy {
	p.now = now
	return p
}

// IsFresh reports whether a recommendation created at createdAt is still
// inside the fresh window.
func (p *StalenessPolicy) IsFresh(createdAt time.Time) bool {
	return p.now().Sub(createdAt) < p.FreshFor
}

// Now returns the policy's current time.
func (p *StalenessPolicy) Now() time.Time {
	return p.now()
}

// ExpiryFrom returns the expiry timestamp for a set cached at t.
func (p *StalenessPolicy) ExpiryFrom(t time.Time) time.Time {
	return t.Add(p.FreshFor)
}
