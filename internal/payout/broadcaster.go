// Package payout claims pending reward records and broadcasts the
// matching dHealth transactions.
package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wnt/health-to-earn/internal/bonus"
	"github.com/wnt/health-to-earn/internal/chain"
	"github.com/wnt/health-to-earn/internal/logger"
	"github.com/wnt/health-to-earn/internal/metrics"
	"github.com/wnt/health-to-earn/internal/store"
)

// failureRecordTimeout bounds the ledger write that records a failed
// attempt after the record's own deadline has already passed.
const failureRecordTimeout = 10 * time.Second

// Ledger is the slice of the store the broadcaster drives.
type Ledger interface {
	FindPending(ctx context.Context) ([]store.RewardRecord, error)
	Claim(ctx context.Context, id, owner string) error
	SaveDraft(ctx context.Context, id string, draft store.Draft) error
	MarkProcessed(ctx context.Context, id string, draft store.Draft, txHash, node string) error
	RecordFailure(ctx context.Context, id, reason string) error
	ReclaimStale(ctx context.Context, olderThan time.Duration, maxAttempts int) (int, error)
}

// Users resolves reward recipients to their persisted state.
type Users interface {
	FindUserByAddress(ctx context.Context, address string) (*store.User, error)
}

// Announcer submits a signed transaction to the network.
type Announcer interface {
	Announce(ctx context.Context, tx *chain.SignedTransaction) (*chain.AnnounceResult, error)
}

// Sampler draws a payout amount in base units around the given mean.
type Sampler interface {
	Sample(mean float64) int64
}

// Config carries the broadcaster's payout parameters.
type Config struct {
	MosaicID uint64
	Mean     float64
	// BroadcastTimeout bounds one record's store and chain calls.
	BroadcastTimeout time.Duration
}

// Broadcaster processes one reward record end to end: claim, compute,
// sign, announce, mark processed.
type Broadcaster struct {
	ledger    Ledger
	users     Users
	sampler   Sampler
	signer    *chain.Signer
	announcer Announcer
	cfg       Config

	// owner tags this process's claims so stale ones are attributable.
	owner  string
	logger zerolog.Logger
}

// NewBroadcaster wires the payout pipeline.
func NewBroadcaster(ledger Ledger, users Users, sampler Sampler, signer *chain.Signer, announcer Announcer, cfg Config, logger zerolog.Logger) *Broadcaster {
	if cfg.BroadcastTimeout <= 0 {
		cfg.BroadcastTimeout = 45 * time.Second
	}
	return &Broadcaster{
		ledger:    ledger,
		users:     users,
		sampler:   sampler,
		signer:    signer,
		announcer: announcer,
		cfg:       cfg,
		owner:     uuid.NewString(),
		logger:    logger.With().Str("component", "broadcaster").Logger(),
	}
}

// Owner returns the claim owner tag of this broadcaster.
func (b *Broadcaster) Owner() string {
	return b.owner
}

// Process pays out one reward record. Losing the claim race is not an
// error; any later failure leaves the record claimed for the recovery
// loop to reschedule.
func (b *Broadcaster) Process(ctx context.Context, rec store.RewardRecord) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.BroadcastTimeout)
	defer cancel()

	log := logger.WithAthlete(logger.WithRecord(b.logger, rec.ID), rec.AthleteID)

	if err := b.ledger.Claim(ctx, rec.ID, b.owner); err != nil {
		if errors.Is(err, store.ErrAlreadyClaimed) {
			log.Debug().Msg("Reward already claimed by another worker")
			metrics.RecordPayout("lost_claim")
			return nil
		}
		metrics.RecordPayout("claim_error")
		return fmt.Errorf("claim reward %s: %w", rec.ID, err)
	}

	start := time.Now()
	err := b.broadcast(ctx, rec, log)
	metrics.ObserveBroadcastDuration(time.Since(start))
	if err != nil {
		metrics.RecordPayout("failed")
		// The per-record context is usually already expired when a
		// timeout caused the failure; the attempt must still land in
		// the ledger or the retry budget never advances.
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureRecordTimeout)
		defer cancel()
		if ferr := b.ledger.RecordFailure(failCtx, rec.ID, err.Error()); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to record payout failure")
		}
		return err
	}

	metrics.RecordPayout("processed")
	return nil
}

func (b *Broadcaster) broadcast(ctx context.Context, rec store.RewardRecord, log zerolog.Logger) error {
	user, err := b.users.FindUserByAddress(ctx, rec.Address)
	if err != nil {
		return fmt.Errorf("load recipient %s: %w", rec.Address, err)
	}

	snapshot := &bonus.User{
		ReferredBy:   user.ReferredBy,
		CountRewards: user.CountRewards,
	}
	multiplier := bonus.Multiplier(snapshot)
	referrerBonus := bonus.ReferrerBonus(snapshot)

	// A retried record reuses its persisted draft so the recipient can
	// never be paid a different amount than the first attempt drew.
	var draft store.Draft
	if rec.HasDraft() {
		draft = store.Draft{
			Amount:        rec.RewardAmount,
			Multiplier:    rec.RewardMultiplier,
			ReferrerBonus: rec.ReferrerBonus,
		}
		log.Info().Int64("amount", draft.Amount).Msg("Reusing persisted payout draft")
	} else {
		draft = store.Draft{
			Amount:        b.sampler.Sample(b.cfg.Mean) * int64(multiplier),
			Multiplier:    multiplier,
			ReferrerBonus: referrerBonus,
		}
		if err := b.ledger.SaveDraft(ctx, rec.ID, draft); err != nil {
			return fmt.Errorf("persist draft for %s: %w", rec.ID, err)
		}
	}

	tx, err := b.buildTransaction(rec, draft, log)
	if err != nil {
		return fmt.Errorf("sign payout for %s: %w", rec.ID, err)
	}

	res, err := b.announcer.Announce(ctx, tx)
	if err != nil {
		return fmt.Errorf("announce payout for %s: %w", rec.ID, err)
	}

	// Only a confirmed acknowledgement flips the ledger record.
	if err := b.ledger.MarkProcessed(ctx, rec.ID, draft, tx.HashHex(), res.Node); err != nil {
		return fmt.Errorf("mark reward %s processed: %w", rec.ID, err)
	}

	log.Info().
		Int64("amount", draft.Amount).
		Int("multiplier", draft.Multiplier).
		Int64("referrer_bonus", draft.ReferrerBonus).
		Str("tx_hash", tx.HashHex()).
		Str("node", res.Node).
		Msg("Reward payout broadcast")
	return nil
}

// buildTransaction produces either a plain transfer or, when a
// referrer bonus applies, an aggregate carrying both transfers under
// one signature.
func (b *Broadcaster) buildTransaction(rec store.RewardRecord, draft store.Draft, log zerolog.Logger) (*chain.SignedTransaction, error) {
	recipient, err := chain.ParseAddress(rec.Address)
	if err != nil {
		return nil, fmt.Errorf("recipient address: %w", err)
	}

	primary := chain.Transfer{
		Recipient: recipient,
		Mosaics:   []chain.Mosaic{{ID: b.cfg.MosaicID, Amount: uint64(draft.Amount)}},
		Message:   rec.RewardDay,
	}

	if draft.ReferrerBonus > 0 {
		referrer, err := chain.ParseAddress(rec.ReferrerAddress)
		if err != nil {
			// An earned bonus with a bad referrer address is dropped,
			// never silently redirected.
			log.Warn().
				Err(err).
				Str("referrer_address", rec.ReferrerAddress).
				Int64("referrer_bonus", draft.ReferrerBonus).
				Msg("Dropping referrer bonus, address is invalid")
		} else {
			secondary := chain.Transfer{
				Recipient: referrer,
				Mosaics:   []chain.Mosaic{{ID: b.cfg.MosaicID, Amount: uint64(draft.ReferrerBonus)}},
				Message:   rec.RewardDay,
			}
			return b.signer.SignAggregateComplete([]chain.Transfer{primary, secondary}, chain.DefaultMaxFee)
		}
	}

	return b.signer.SignTransfer(primary, 0)
}
