// Package bonus computes the payout multiplier and the referrer bonus
// amount from a snapshot of a user's referral state.
package bonus

// Referrer bonus tiers in absolute currency units (6 decimal places
// implied, i.e. 100000 = 0.100000 DHP). A referrer is paid once at each
// exact activity-count milestone of the user they referred, not
// cumulatively.
const (
	BonusFirstActivity int64 = 100000
	BonusThirdActivity int64 = 200000
	BonusFifthActivity int64 = 300000
	BonusTenthActivity int64 = 500000
)

// User is the minimal snapshot the calculators need. Callers map their
// persisted user record onto it; a nil user or zero values degrade to
// the safe defaults (multiplier 1, bonus 0).
type User struct {
	ReferredBy   string
	CountRewards int
}

// Multiplier returns the factor applied to the sampled reward amount
// before payout. It is 2 only for the first rewarded activity of a
// referred user, and 1 in every other case.
func Multiplier(u *User) int {
	if u == nil || u.ReferredBy == "" {
		return 1
	}
	if u.CountRewards <= 0 {
		return 1
	}
	if u.CountRewards == 1 {
		return 2
	}
	return 1
}

// ReferrerBonus returns the amount sent to the user's referrer, or 0
// when no bonus is due. Tiers match on the exact reward count so each
// milestone pays exactly once.
func ReferrerBonus(u *User) int64 {
	if u == nil || u.ReferredBy == "" {
		return 0
	}
	if u.CountRewards <= 0 {
		return 0
	}
	switch u.CountRewards {
	case 1:
		return BonusFirstActivity
	case 3:
		return BonusThirdActivity
	case 5:
		return BonusFifthActivity
	case 10:
		return BonusTenthActivity
	}
	return 0
}
