package store

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// CreateIfAbsent inserts the reward record unless the daily key is
// already taken. The second event of a day gets ErrAlreadyExists and
// the ledger is left untouched.
func (s *Store) CreateIfAbsent(ctx context.Context, id string, record RewardRecord) error {
	record.Status = StatusPending
	record.Attempts = 0

	_, err := s.client.Collection(rewardsCollection).Doc(id).Create(ctx, record)
	return mapErr(err)
}

// FindPending returns a fresh snapshot of every pending reward.
func (s *Store) FindPending(ctx context.Context) ([]RewardRecord, error) {
	iter := s.client.Collection(rewardsCollection).
		Where("status", "==", string(StatusPending)).
		Documents(ctx)
	defer iter.Stop()

	var records []RewardRecord
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapErr(err)
		}

		var rec RewardRecord
		if err := doc.DataTo(&rec); err != nil {
			s.logger.Warn().Err(err).Str("record", doc.Ref.ID).Msg("Skipping malformed reward record")
			continue
		}
		rec.ID = doc.Ref.ID
		records = append(records, rec)
	}
	return records, nil
}

// Claim performs the pending->claimed transition. Exactly one caller
// wins; everyone else gets ErrAlreadyClaimed.
func (s *Store) Claim(ctx context.Context, id, owner string) error {
	ref := s.client.Collection(rewardsCollection).Doc(id)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}

		current, err := doc.DataAt("status")
		if err != nil {
			return err
		}
		if current != string(StatusPending) {
			return ErrAlreadyClaimed
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(StatusClaimed)},
			{Path: "claimedBy", Value: owner},
			{Path: "claimedAt", Value: time.Now().UTC()},
		})
	})
	if errors.Is(err, ErrAlreadyClaimed) {
		return ErrAlreadyClaimed
	}
	return mapErr(err)
}

// SaveDraft persists the sampled payout on the claimed record before
// any signing happens.
func (s *Store) SaveDraft(ctx context.Context, id string, draft Draft) error {
	_, err := s.client.Collection(rewardsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "rewardAmount", Value: draft.Amount},
		{Path: "rewardMultiplier", Value: draft.Multiplier},
		{Path: "referrerBonus", Value: draft.ReferrerBonus},
	})
	return mapErr(err)
}

// MarkProcessed finishes a reward after the transaction was announced
// and acknowledged. The transition is conditional on the record still
// being claimed, so a reclaimed record is never overwritten.
func (s *Store) MarkProcessed(ctx context.Context, id string, draft Draft, txHash, node string) error {
	ref := s.client.Collection(rewardsCollection).Doc(id)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}

		current, err := doc.DataAt("status")
		if err != nil {
			return err
		}
		if current != string(StatusClaimed) {
			return ErrAlreadyClaimed
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(StatusProcessed)},
			{Path: "rewardAmount", Value: draft.Amount},
			{Path: "rewardMultiplier", Value: draft.Multiplier},
			{Path: "referrerBonus", Value: draft.ReferrerBonus},
			{Path: "transactionHash", Value: txHash},
			{Path: "transactionNode", Value: node},
			{Path: "processedAt", Value: time.Now().UTC()},
		})
	})
	if errors.Is(err, ErrAlreadyClaimed) {
		return ErrAlreadyClaimed
	}
	return mapErr(err)
}

// RecordFailure bumps the attempt counter and keeps the record claimed
// so the recovery loop decides its fate.
func (s *Store) RecordFailure(ctx context.Context, id, reason string) error {
	_, err := s.client.Collection(rewardsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "attempts", Value: firestore.Increment(1)},
		{Path: "failureReason", Value: reason},
	})
	return mapErr(err)
}

// ReclaimStale returns expired claims to the pending pool, or parks
// them as failed once the attempt budget is spent. It reports how many
// records went back to pending.
func (s *Store) ReclaimStale(ctx context.Context, olderThan time.Duration, maxAttempts int) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	iter := s.client.Collection(rewardsCollection).
		Where("status", "==", string(StatusClaimed)).
		Documents(ctx)
	defer iter.Stop()

	reclaimed := 0
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return reclaimed, mapErr(err)
		}

		var rec RewardRecord
		if err := doc.DataTo(&rec); err != nil {
			s.logger.Warn().Err(err).Str("record", doc.Ref.ID).Msg("Skipping malformed reward record")
			continue
		}
		if rec.ClaimedAt.After(cutoff) {
			continue
		}

		if rec.Attempts >= maxAttempts {
			_, err = doc.Ref.Update(ctx, []firestore.Update{
				{Path: "status", Value: string(StatusFailed)},
			})
			if err != nil {
				return reclaimed, mapErr(err)
			}
			s.logger.Error().
				Str("record", doc.Ref.ID).
				Int("attempts", rec.Attempts).
				Msg("Reward moved to failed after exhausting attempts")
			continue
		}

		_, err = doc.Ref.Update(ctx, []firestore.Update{
			{Path: "status", Value: string(StatusPending)},
			{Path: "claimedBy", Value: firestore.Delete},
			{Path: "claimedAt", Value: firestore.Delete},
		})
		if err != nil {
			return reclaimed, mapErr(err)
		}
		reclaimed++
		s.logger.Info().
			Str("record", doc.Ref.ID).
			Time("claimed_at", rec.ClaimedAt).
			Msg("Requeued stale reward claim")
	}
	return reclaimed, nil
}
