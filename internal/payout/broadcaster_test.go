package payout

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wnt/health-to-earn/internal/chain"
	"github.com/wnt/health-to-earn/internal/store"
)

type fakeLedger struct {
	mu        sync.Mutex
	pending   []store.RewardRecord
	claimed   map[string]string
	drafts    map[string]store.Draft
	processed map[string]string
	failures  map[string]string

	claimErr error
	findErr  error
	draftErr error
}

func newFakeLedger(pending ...store.RewardRecord) *fakeLedger {
	return &fakeLedger{
		pending:   pending,
		claimed:   make(map[string]string),
		drafts:    make(map[string]store.Draft),
		processed: make(map[string]string),
		failures:  make(map[string]string),
	}
}

func (f *fakeLedger) FindPending(ctx context.Context) ([]store.RewardRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	return append([]store.RewardRecord{}, f.pending...), nil
}

func (f *fakeLedger) Claim(ctx context.Context, id, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return f.claimErr
	}
	if _, taken := f.claimed[id]; taken {
		return store.ErrAlreadyClaimed
	}
	f.claimed[id] = owner
	return nil
}

func (f *fakeLedger) SaveDraft(ctx context.Context, id string, draft store.Draft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draftErr != nil {
		return f.draftErr
	}
	f.drafts[id] = draft
	return nil
}

func (f *fakeLedger) MarkProcessed(ctx context.Context, id string, draft store.Draft, txHash, node string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[id] = txHash
	f.drafts[id] = draft
	return nil
}

func (f *fakeLedger) RecordFailure(ctx context.Context, id, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = reason
	return nil
}

func (f *fakeLedger) ReclaimStale(ctx context.Context, olderThan time.Duration, maxAttempts int) (int, error) {
	return 0, nil
}

type fakeUsers struct {
	byAddress map[string]*store.User
}

func (f *fakeUsers) FindUserByAddress(ctx context.Context, address string) (*store.User, error) {
	if u, ok := f.byAddress[address]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

type fakeAnnouncer struct {
	mu    sync.Mutex
	sent  []*chain.SignedTransaction
	err   error
	node  string
}

func (f *fakeAnnouncer) Announce(ctx context.Context, tx *chain.SignedTransaction) (*chain.AnnounceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, tx)
	return &chain.AnnounceResult{Node: f.node, Message: "packet pushed to the network"}, nil
}

func (f *fakeAnnouncer) lastSent() *chain.SignedTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

// fixedSampler always draws the same base-unit amount.
type fixedSampler struct {
	amount int64
	calls  int
}

func (f *fixedSampler) Sample(mean float64) int64 {
	f.calls++
	return f.amount
}

func testAddress(t *testing.T, seed byte) string {
	t.Helper()
	raw := make([]byte, ed25519.SeedSize)
	for i := range raw {
		raw[i] = seed
	}
	pub := ed25519.NewKeyFromSeed(raw).Public().(ed25519.PublicKey)
	addr, err := chain.AddressFromPublicKey(pub, chain.MainNet)
	require.NoError(t, err)
	return addr.Plain()
}

func testChainSigner(t *testing.T) *chain.Signer {
	t.Helper()
	account, err := chain.AccountFromPrivateKey(
		"575DBB3062267EFF57C970A336EBBC8FBCFE12C5BD3ED7BC11EB0481D7704CED",
		chain.MainNet,
	)
	require.NoError(t, err)

	signer, err := chain.NewSigner(account, "ACECD90E7B248E012803228ADB4424F0D966D24149B72E58987D2BF2F2AF03C4", 1616978397)
	require.NoError(t, err)
	return signer
}

type harness struct {
	ledger    *fakeLedger
	users     *fakeUsers
	announcer *fakeAnnouncer
	sampler   *fixedSampler
	b         *Broadcaster
}

func newHarness(t *testing.T, ledger *fakeLedger, users *fakeUsers) *harness {
	t.Helper()
	h := &harness{
		ledger:    ledger,
		users:     users,
		announcer: &fakeAnnouncer{node: "http://dual-01.dhealth.cloud:3000"},
		sampler:   &fixedSampler{amount: 807500},
	}
	h.b = NewBroadcaster(ledger, users, h.sampler, testChainSigner(t), h.announcer, Config{
		MosaicID: 0x39E0C49FA322A459,
		Mean:     0.8,
	}, zerolog.Nop())
	return h
}

func pendingRecord(t *testing.T, id, athleteID string, addrSeed byte) store.RewardRecord {
	t.Helper()
	return store.RewardRecord{
		ID:        id,
		Address:   testAddress(t, addrSeed),
		AthleteID: athleteID,
		Status:    store.StatusPending,
		RewardDay: "20220115",
	}
}

func TestProcessSingleTransfer(t *testing.T) {
	rec := pendingRecord(t, "20220115-111", "111", 20)
	ledger := newFakeLedger(rec)
	h := newHarness(t, ledger, &fakeUsers{byAddress: map[string]*store.User{
		rec.Address: {Address: rec.Address, AthleteID: "111", CountRewards: 2},
	}})

	require.NoError(t, h.b.Process(context.Background(), rec))

	assert.Equal(t, h.b.Owner(), ledger.claimed[rec.ID])
	assert.Equal(t, store.Draft{Amount: 807500, Multiplier: 1}, ledger.drafts[rec.ID])

	tx := h.announcer.lastSent()
	require.NotNil(t, tx)
	assert.Equal(t, chain.TypeTransfer, tx.Type)
	assert.Equal(t, tx.HashHex(), ledger.processed[rec.ID])
	assert.Empty(t, ledger.failures)
}

func TestProcessAggregateWithReferrerBonus(t *testing.T) {
	rec := pendingRecord(t, "20220115-222", "222", 21)
	rec.ReferrerAddress = testAddress(t, 22)

	ledger := newFakeLedger(rec)
	// First activity of a referred user: multiplier 2 and a 100000
	// bonus for the referrer.
	h := newHarness(t, ledger, &fakeUsers{byAddress: map[string]*store.User{
		rec.Address: {Address: rec.Address, AthleteID: "222", ReferredBy: "a1b2c3d4", CountRewards: 1},
	}})

	require.NoError(t, h.b.Process(context.Background(), rec))

	draft := ledger.drafts[rec.ID]
	assert.Equal(t, int64(807500*2), draft.Amount)
	assert.Equal(t, 2, draft.Multiplier)
	assert.Equal(t, int64(100000), draft.ReferrerBonus)

	tx := h.announcer.lastSent()
	require.NotNil(t, tx)
	assert.Equal(t, chain.TypeAggregateComplete, tx.Type)
}

func TestProcessDropsBonusOnInvalidReferrer(t *testing.T) {
	rec := pendingRecord(t, "20220115-333", "333", 23)
	rec.ReferrerAddress = "not-an-address"

	ledger := newFakeLedger(rec)
	h := newHarness(t, ledger, &fakeUsers{byAddress: map[string]*store.User{
		rec.Address: {Address: rec.Address, AthleteID: "333", ReferredBy: "a1b2c3d4", CountRewards: 1},
	}})

	require.NoError(t, h.b.Process(context.Background(), rec))

	// The bonus stays on the draft for the books, but the announced
	// transaction is a plain transfer.
	assert.Equal(t, int64(100000), ledger.drafts[rec.ID].ReferrerBonus)
	tx := h.announcer.lastSent()
	require.NotNil(t, tx)
	assert.Equal(t, chain.TypeTransfer, tx.Type)
}

func TestProcessLostClaimIsNotAnError(t *testing.T) {
	rec := pendingRecord(t, "20220115-444", "444", 24)
	ledger := newFakeLedger(rec)
	ledger.claimErr = store.ErrAlreadyClaimed

	h := newHarness(t, ledger, &fakeUsers{byAddress: map[string]*store.User{}})

	require.NoError(t, h.b.Process(context.Background(), rec))
	assert.Nil(t, h.announcer.lastSent())
	assert.Empty(t, ledger.processed)
}

func TestProcessAnnounceFailureKeepsClaim(t *testing.T) {
	rec := pendingRecord(t, "20220115-555", "555", 25)
	ledger := newFakeLedger(rec)
	h := newHarness(t, ledger, &fakeUsers{byAddress: map[string]*store.User{
		rec.Address: {Address: rec.Address, AthleteID: "555", CountRewards: 3},
	}})
	h.announcer.err = errors.New("all nodes down")

	err := h.b.Process(context.Background(), rec)
	require.Error(t, err)

	// Draft persisted before the failure; record stays claimed with
	// the failure on the books, never processed.
	assert.Contains(t, ledger.drafts, rec.ID)
	assert.Contains(t, ledger.failures, rec.ID)
	assert.Empty(t, ledger.processed)
	assert.Equal(t, h.b.Owner(), ledger.claimed[rec.ID])
}

// stalledAnnouncer blocks until the caller's context expires, the way a
// chain outage does when every attempt runs into its deadline.
type stalledAnnouncer struct{}

func (stalledAnnouncer) Announce(ctx context.Context, tx *chain.SignedTransaction) (*chain.AnnounceResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestProcessTimeoutStillRecordsFailure(t *testing.T) {
	rec := pendingRecord(t, "20220115-888", "888", 28)
	ledger := newFakeLedger(rec)

	b := NewBroadcaster(ledger, &fakeUsers{byAddress: map[string]*store.User{
		rec.Address: {Address: rec.Address, AthleteID: "888", CountRewards: 2},
	}}, &fixedSampler{amount: 807500}, testChainSigner(t), stalledAnnouncer{}, Config{
		MosaicID:         0x39E0C49FA322A459,
		Mean:             0.8,
		BroadcastTimeout: 50 * time.Millisecond,
	}, zerolog.Nop())

	err := b.Process(context.Background(), rec)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The per-record deadline is long gone, but the attempt still has
	// to reach the ledger or the record would be requeued forever.
	assert.Contains(t, ledger.failures, rec.ID)
	assert.Equal(t, b.Owner(), ledger.claimed[rec.ID])
	assert.Empty(t, ledger.processed)
}

func TestProcessReusesPersistedDraft(t *testing.T) {
	rec := pendingRecord(t, "20220115-666", "666", 26)
	rec.RewardAmount = 912345
	rec.RewardMultiplier = 1

	ledger := newFakeLedger(rec)
	h := newHarness(t, ledger, &fakeUsers{byAddress: map[string]*store.User{
		rec.Address: {Address: rec.Address, AthleteID: "666", CountRewards: 4},
	}})

	require.NoError(t, h.b.Process(context.Background(), rec))

	// No fresh draw on retry.
	assert.Zero(t, h.sampler.calls)
	assert.Equal(t, int64(912345), ledger.drafts[rec.ID].Amount)
}

func TestProcessUnknownRecipientFails(t *testing.T) {
	rec := pendingRecord(t, "20220115-777", "777", 27)
	ledger := newFakeLedger(rec)
	h := newHarness(t, ledger, &fakeUsers{byAddress: map[string]*store.User{}})

	err := h.b.Process(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, ledger.failures, rec.ID)
}
