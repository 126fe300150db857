package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// FindUserByAthleteID loads the user document keyed by athlete id.
func (s *Store) FindUserByAthleteID(ctx context.Context, athleteID string) (*User, error) {
	doc, err := s.client.Collection(usersCollection).Doc(athleteID).Get(ctx)
	if err != nil {
		return nil, mapErr(err)
	}

	var u User
	if err := doc.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", athleteID, err)
	}
	u.AthleteID = doc.Ref.ID
	return &u, nil
}

// FindUserByAddress looks a user up by dHealth address.
func (s *Store) FindUserByAddress(ctx context.Context, address string) (*User, error) {
	return s.findUserWhere(ctx, "address", address)
}

// FindUserByReferralCode looks a user up by referral code.
func (s *Store) FindUserByReferralCode(ctx context.Context, code string) (*User, error) {
	return s.findUserWhere(ctx, "referralCode", code)
}

func (s *Store) findUserWhere(ctx context.Context, field, value string) (*User, error) {
	iter := s.client.Collection(usersCollection).
		Where(field, "==", value).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}

	var u User
	if err := doc.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", doc.Ref.ID, err)
	}
	u.AthleteID = doc.Ref.ID
	return &u, nil
}

// EnsureReferralCode returns the user's referral code, generating and
// persisting a random 4-byte hex code on first request.
func (s *Store) EnsureReferralCode(ctx context.Context, athleteID string) (string, error) {
	u, err := s.FindUserByAthleteID(ctx, athleteID)
	if err != nil {
		return "", err
	}
	if u.ReferralCode != "" {
		return u.ReferralCode, nil
	}

	raw := make([]byte, 4)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate referral code: %w", err)
	}
	code := hex.EncodeToString(raw)

	_, err = s.client.Collection(usersCollection).Doc(athleteID).Update(ctx, []firestore.Update{
		{Path: "referralCode", Value: code},
	})
	if err != nil {
		return "", mapErr(err)
	}

	s.logger.Info().Str("athlete", athleteID).Msg("Generated referral code")
	return code, nil
}

// IncrementRewardCount bumps the athlete's lifetime reward counter.
// The bonus tiers key off this value, so it moves exactly once per
// created reward record.
func (s *Store) IncrementRewardCount(ctx context.Context, athleteID string) error {
	_, err := s.client.Collection(usersCollection).Doc(athleteID).Update(ctx, []firestore.Update{
		{Path: "countRewards", Value: firestore.Increment(1)},
	})
	return mapErr(err)
}
