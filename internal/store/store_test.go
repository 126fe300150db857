package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRewardID(t *testing.T) {
	at := time.Date(2022, 1, 15, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "20220115-12345", RewardID(at, "12345"))

	// The day key is always UTC, whatever zone the caller hands in.
	zone := time.FixedZone("UTC+9", 9*3600)
	late := time.Date(2022, 1, 16, 6, 0, 0, 0, zone) // 21:00 UTC on the 15th
	assert.Equal(t, "20220115-12345", RewardID(late, "12345"))
}

func TestHasDraft(t *testing.T) {
	assert.False(t, (&RewardRecord{}).HasDraft())
	assert.False(t, (&RewardRecord{RewardAmount: 807500}).HasDraft())
	assert.True(t, (&RewardRecord{RewardAmount: 807500, RewardMultiplier: 1}).HasDraft())
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"not_found", status.Error(codes.NotFound, "missing"), ErrNotFound},
		{"already_exists", status.Error(codes.AlreadyExists, "dup"), ErrAlreadyExists},
		{"unavailable", status.Error(codes.Unavailable, "down"), ErrStoreUnavailable},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), ErrStoreUnavailable},
		{"exhausted", status.Error(codes.ResourceExhausted, "quota"), ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapErr(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}

	// Codes without a sentinel pass through unchanged.
	plain := errors.New("boom")
	assert.Equal(t, plain, mapErr(plain))
}
