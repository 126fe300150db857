// Package store is the Firestore persistence layer: users, reward
// records and the global counters document.
package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection      = "users"
	rewardsCollection    = "rewards"
	statisticsCollection = "statistics"

	countersDoc = "--counters--"
)

var (
	// ErrStoreUnavailable signals a transient backend outage; callers
	// skip the cycle and retry later.
	ErrStoreUnavailable = errors.New("store: backend unavailable")

	// ErrNotFound means the requested document does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned by create-if-absent when the
	// document was already created.
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrAlreadyClaimed means another worker won the claim transition.
	ErrAlreadyClaimed = errors.New("store: reward already claimed")
)

// Store wraps the Firestore client used by all collections.
type Store struct {
	client *firestore.Client
	logger zerolog.Logger
}

// New connects to Firestore for the given project. credentialsFile may
// be empty, in which case application default credentials apply.
func New(ctx context.Context, projectID, credentialsFile string, logger zerolog.Logger) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to firestore: %w", err)
	}

	return &Store{
		client: client,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// mapErr folds grpc status codes into the store's sentinel errors so
// callers never depend on transport details.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
