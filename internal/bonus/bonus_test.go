package bonus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiplier(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want int
	}{
		{"nil user", nil, 1},
		{"not referred", &User{ReferredBy: "", CountRewards: 1}, 1},
		{"referred, zero rewards", &User{ReferredBy: "a1b2c3d4", CountRewards: 0}, 1},
		{"referred, negative count", &User{ReferredBy: "a1b2c3d4", CountRewards: -3}, 1},
		{"referred, first activity", &User{ReferredBy: "a1b2c3d4", CountRewards: 1}, 2},
		{"referred, second activity", &User{ReferredBy: "a1b2c3d4", CountRewards: 2}, 1},
		{"referred, tenth activity", &User{ReferredBy: "a1b2c3d4", CountRewards: 10}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Multiplier(tt.user))
		})
	}
}

func TestReferrerBonus(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want int64
	}{
		{"nil user", nil, 0},
		{"not referred", &User{CountRewards: 1}, 0},
		{"referred, zero rewards", &User{ReferredBy: "a1b2c3d4"}, 0},
		{"referred, negative count", &User{ReferredBy: "a1b2c3d4", CountRewards: -1}, 0},
		{"first activity", &User{ReferredBy: "a1b2c3d4", CountRewards: 1}, 100000},
		{"third activity", &User{ReferredBy: "a1b2c3d4", CountRewards: 3}, 200000},
		{"fifth activity", &User{ReferredBy: "a1b2c3d4", CountRewards: 5}, 300000},
		{"tenth activity", &User{ReferredBy: "a1b2c3d4", CountRewards: 10}, 500000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReferrerBonus(tt.user))
		})
	}
}

// Milestones pay only at the exact count, never at the counts in between
// or beyond.
func TestReferrerBonusOffMilestones(t *testing.T) {
	for _, count := range []int{0, 2, 4, 6, 7, 8, 9, 11, 25, 100} {
		u := &User{ReferredBy: "deadbeef", CountRewards: count}
		assert.Zerof(t, ReferrerBonus(u), "count %d should not pay a bonus", count)
	}
}
