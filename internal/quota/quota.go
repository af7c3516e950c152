// Package quota decides whether an account may add another asset under its
// plan ceiling.
package quota

import (
	"fmt"

	"upkeep/internal/domain"
)

// Unbounded is the ceiling used for the top tier. It is a large sentinel so
// arithmetic on remaining slots stays finite.
const Unbounded = 999999

// Ceilings maps a plan tier to its maximum number of assets.
type Ceilings map[domain.PlanTier]int

// DefaultCeilings are the built-in plan ceilings.
var DefaultCeilings = Ceilings{
	domain.PlanStarter: 3,
	domain.PlanGrowth:  50,
	domain.PlanScale:   Unbounded,
}

// Limit returns the ceiling for tier. Tiers without a configured ceiling use
// the built-in value, and unknown tiers get the starter ceiling.
func (c Ceilings) Limit(tier domain.PlanTier) int {
	if v, ok := c[tier]; ok && v > 0 {
		return v
	}
	if v, ok := DefaultCeilings[tier]; ok {
		return v
	}
	return DefaultCeilings[domain.PlanStarter]
}

// Status is the outcome of a quota evaluation.
type Status struct {
	Plan            domain.PlanTier `json:"plan_type"`
	Allowed         bool            `json:"can_add_more"`
	Limit           int             `json:"max_assets"`
	Current         int             `json:"current_assets"`
	Remaining       int             `json:"remaining_slots"`
	UpgradeRequired bool            `json:"upgrade_required"`
}

// Evaluate computes the quota status for an account holding current assets.
func (c Ceilings) Evaluate(tier domain.PlanTier, current int) Status {
	if current < 0 {
		current = 0
	}
	limit := c.Limit(tier)
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Plan:            tier,
		Allowed:         current < limit,
		Limit:           limit,
		Current:         current,
		Remaining:       remaining,
		UpgradeRequired: IsLowestTier(tier),
	}
}

// Check returns an *ExceededError when no slot is left.
func (s Status) Check() error {
	if s.Allowed {
		return nil
	}
	return &ExceededError{
		Plan:            s.Plan,
		Limit:           s.Limit,
		Current:         s.Current,
		UpgradeRequired: s.UpgradeRequired,
	}
}

// ExceededError rejects an asset creation at or above the plan ceiling.
type ExceededError struct {
	Plan            domain.PlanTier
	Limit           int
	Current         int
	UpgradeRequired bool
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("asset limit reached: %s plan allows %d assets (current %d)", e.Plan, e.Limit, e.Current)
}

// IsLowestTier reports whether an upgrade would raise the ceiling for tier.
func IsLowestTier(tier domain.PlanTier) bool {
	return tier == domain.PlanTiers[0]
}

// Increment returns the counter after one asset is added.
func Increment(current int) int {
	if current < 0 {
		return 1
	}
	return current + 1
}

// Decrement returns the counter after one asset is removed, floored at zero.
func Decrement(current int) int {
	if current <= 0 {
		return 0
	}
	return current - 1
}

// ParseTier validates a plan tier name.
func ParseTier(s string) (domain.PlanTier, error) {
	for _, t := range domain.PlanTiers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid plan type %q", s)
}
