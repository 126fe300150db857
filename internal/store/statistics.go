package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
)

// IncrementCounters atomically bumps the global counters document.
// Zero deltas are skipped so callers can pass only what changed.
func (s *Store) IncrementCounters(ctx context.Context, users, rewards, referrals int64) error {
	var updates []firestore.Update
	if users != 0 {
		updates = append(updates, firestore.Update{Path: "countUsers", Value: firestore.Increment(users)})
	}
	if rewards != 0 {
		updates = append(updates, firestore.Update{Path: "countRewards", Value: firestore.Increment(rewards)})
	}
	if referrals != 0 {
		updates = append(updates, firestore.Update{Path: "countReferrals", Value: firestore.Increment(referrals)})
	}
	if len(updates) == 0 {
		return nil
	}

	ref := s.client.Collection(statisticsCollection).Doc(countersDoc)
	_, err := ref.Update(ctx, updates)
	if err != nil && errors.Is(mapErr(err), ErrNotFound) {
		// First write creates the document.
		_, err = ref.Set(ctx, Counters{
			CountUsers:     users,
			CountRewards:   rewards,
			CountReferrals: referrals,
		})
	}
	return mapErr(err)
}

// IncrementReferralUse bumps the per-code referral counter kept next
// to the global one, keyed by the referral code itself. The merge
// write creates the document on first use.
func (s *Store) IncrementReferralUse(ctx context.Context, code string) error {
	if code == "" {
		return nil
	}
	ref := s.client.Collection(statisticsCollection).Doc(code)
	_, err := ref.Set(ctx, map[string]interface{}{
		"countReferrals": firestore.Increment(1),
	}, firestore.MergeAll)
	return mapErr(err)
}

// Totals reads the global counters document. A missing document reads
// as all-zero counters.
func (s *Store) Totals(ctx context.Context) (Counters, error) {
	doc, err := s.client.Collection(statisticsCollection).Doc(countersDoc).Get(ctx)
	if err != nil {
		if errors.Is(mapErr(err), ErrNotFound) {
			return Counters{}, nil
		}
		return Counters{}, mapErr(err)
	}

	var c Counters
	if err := doc.DataTo(&c); err != nil {
		return Counters{}, fmt.Errorf("decode counters: %w", err)
	}
	return c, nil
}
