package strava

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wnt/health-to-earn/internal/metrics"
	"github.com/wnt/health-to-earn/internal/store"
)

// Store is the slice of the persistence layer the webhook needs.
type Store interface {
	FindUserByAthleteID(ctx context.Context, athleteID string) (*store.User, error)
	FindUserByReferralCode(ctx context.Context, code string) (*store.User, error)
	CreateIfAbsent(ctx context.Context, id string, record store.RewardRecord) error
	IncrementRewardCount(ctx context.Context, athleteID string) error
	IncrementCounters(ctx context.Context, users, rewards, referrals int64) error
	IncrementReferralUse(ctx context.Context, code string) error
}

// ErrVerification is returned when a subscription challenge carries a
// wrong mode or token.
var ErrVerification = errors.New("strava: subscription verification failed")

// Service handles Strava webhook traffic.
type Service struct {
	store       Store
	verifyToken string
	logger      zerolog.Logger

	// now is swapped in tests to pin the reward day.
	now func() time.Time
}

// NewService builds the webhook service around the store.
func NewService(s Store, verifyToken string, logger zerolog.Logger) *Service {
	return &Service{
		store:       s,
		verifyToken: verifyToken,
		logger:      logger.With().Str("component", "strava").Logger(),
		now:         time.Now,
	}
}

// VerifySubscription checks a webhook subscription challenge and
// returns the challenge value to echo back.
func (s *Service) VerifySubscription(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || token != s.verifyToken {
		return "", ErrVerification
	}
	return challenge, nil
}

// HandleActivityEvent processes one webhook event. Whatever happens
// the caller still answers 200; the result only says whether a reward
// record was created.
func (s *Service) HandleActivityEvent(ctx context.Context, event Event) Result {
	if !event.IsActivityCreation() {
		metrics.RecordWebhookEvent("ignored")
		return EventIgnored
	}

	athleteID := strconv.FormatInt(event.OwnerID, 10)
	log := s.logger.With().Str("athlete", athleteID).Int64("activity", event.ObjectID).Logger()

	user, err := s.store.FindUserByAthleteID(ctx, athleteID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Msg("Failed to look up athlete")
		}
		metrics.RecordWebhookEvent("ignored")
		return EventIgnored
	}

	now := s.now()
	referrerAddress, referralCode := s.resolveReferrer(ctx, user, log)
	record := store.RewardRecord{
		Address:         user.Address,
		AthleteID:       athleteID,
		ActivityID:      strconv.FormatInt(event.ObjectID, 10),
		RewardDay:       now.UTC().Format("20060102"),
		ReferrerAddress: referrerAddress,
		ActivityAt:      now.UTC(),
	}

	id := store.RewardID(now, athleteID)
	if err := s.store.CreateIfAbsent(ctx, id, record); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Second activity of the day; the first one earned it.
			log.Debug().Str("record", id).Msg("Reward already exists for today")
		} else {
			log.Error().Err(err).Str("record", id).Msg("Failed to create reward record")
		}
		metrics.RecordWebhookEvent("ignored")
		return EventIgnored
	}

	// Counters move once per created record: the tiers key off the
	// user's lifetime count, so it must never double-move on dedupe.
	var referrals int64
	if referralCode != "" {
		referrals = 1
	}
	if err := s.store.IncrementCounters(ctx, 0, 1, referrals); err != nil {
		log.Warn().Err(err).Msg("Failed to bump reward counters")
	}
	if referralCode != "" {
		if err := s.store.IncrementReferralUse(ctx, referralCode); err != nil {
			log.Warn().Err(err).Str("code", referralCode).Msg("Failed to bump referral code counter")
		}
	}
	if err := s.store.IncrementRewardCount(ctx, athleteID); err != nil {
		log.Warn().Err(err).Msg("Failed to bump athlete reward count")
	}

	log.Info().Str("record", id).Msg("Reward record created")
	metrics.RecordWebhookEvent("received")
	return EventReceived
}

// resolveReferrer maps the user's referredBy code to the referrer's
// payout address and the normalized code, if any.
func (s *Service) resolveReferrer(ctx context.Context, user *store.User, log zerolog.Logger) (address, code string) {
	if user.ReferredBy == "" {
		return "", ""
	}

	code = strings.ToLower(user.ReferredBy)
	referrer, err := s.store.FindUserByReferralCode(ctx, code)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to resolve referrer")
		}
		return "", ""
	}
	return referrer.Address, code
}
