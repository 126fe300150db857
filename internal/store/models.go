package store

import (
	"fmt"
	"time"
)

// RewardStatus tracks a reward record through the payout pipeline.
type RewardStatus string

const (
	StatusPending   RewardStatus = "pending"
	StatusClaimed   RewardStatus = "claimed"
	StatusProcessed RewardStatus = "processed"
	StatusFailed    RewardStatus = "failed"
)

// User is one linked Strava athlete. The document id is the athlete id.
type User struct {
	Address         string    `firestore:"address"`
	AthleteID       string    `firestore:"athleteId"`
	AccessToken     string    `firestore:"accessToken,omitempty"`
	RefreshToken    string    `firestore:"refreshToken,omitempty"`
	AccessExpiresAt time.Time `firestore:"accessExpiresAt,omitempty"`
	ReferralCode    string    `firestore:"referralCode,omitempty"`
	ReferredBy      string    `firestore:"referredBy,omitempty"`
	CountRewards    int       `firestore:"countRewards"`
	LinkedAt        time.Time `firestore:"linkedAt,omitempty"`
}

// RewardRecord is one payable activity. The document id is
// {YYYYMMDD}-{athleteId}, which is what makes same-day events collapse.
type RewardRecord struct {
	ID              string       `firestore:"-"`
	Address         string       `firestore:"address"`
	AthleteID       string       `firestore:"athleteId"`
	ActivityID      string       `firestore:"activityId"`
	Status          RewardStatus `firestore:"status"`
	IsConfirmed     bool         `firestore:"isConfirmed"`
	RewardDay       string       `firestore:"rewardDay"`
	ReferrerAddress string       `firestore:"referrerAddress,omitempty"`
	ActivityAt      time.Time    `firestore:"activityAt"`

	ClaimedBy string    `firestore:"claimedBy,omitempty"`
	ClaimedAt time.Time `firestore:"claimedAt,omitempty"`
	Attempts  int       `firestore:"attempts"`

	RewardAmount     int64     `firestore:"rewardAmount,omitempty"`
	RewardMultiplier int       `firestore:"rewardMultiplier,omitempty"`
	ReferrerBonus    int64     `firestore:"referrerBonus,omitempty"`
	TransactionHash  string    `firestore:"transactionHash,omitempty"`
	TransactionNode  string    `firestore:"transactionNode,omitempty"`
	ProcessedAt      time.Time `firestore:"processedAt,omitempty"`
	FailureReason    string    `firestore:"failureReason,omitempty"`
}

// Draft is the sampled payout persisted before signing so a retry
// reuses the same amount instead of drawing a new one.
type Draft struct {
	Amount        int64
	Multiplier    int
	ReferrerBonus int64
}

// HasDraft reports whether a sampled amount was already persisted.
func (r *RewardRecord) HasDraft() bool {
	return r.RewardAmount > 0 && r.RewardMultiplier > 0
}

// Counters is the global statistics document.
type Counters struct {
	CountUsers     int64 `firestore:"countUsers"`
	CountRewards   int64 `firestore:"countRewards"`
	CountReferrals int64 `firestore:"countReferrals"`
}

// RewardID builds the daily dedupe key for an athlete. The day is
// taken in UTC so a key never depends on server locale.
func RewardID(at time.Time, athleteID string) string {
	return fmt.Sprintf("%s-%s", at.UTC().Format("20060102"), athleteID)
}
