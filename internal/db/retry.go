package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/chat/internal/logging"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// IsRetryable decides whether a failed attempt should be tried again.
type IsRetryable func(err error) bool

const (
	DefaultMaxRetries = 3
	retryBaseDelay    = 50 * time.Millisecond
)

// Try executes op, retrying duplicate key errors up to DefaultMaxRetries times.
func Try(ctx context.Context, op Operation) error {
	return WithRetries(ctx, op, DefaultMaxRetries, IsMongoDuplicateKeyError)
}

// WithRetries runs op once plus up to maxRetries retries while retryable(err) holds.
// The delay grows linearly; cancelling ctx stops waiting and returns the last error.
func WithRetries(ctx context.Context, op Operation, maxRetries int, retryable IsRetryable) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == maxRetries || !retryable(err) {
			return err
		}

		logging.Debug().Err(err).Int("attempt", attempt+1).Msg("retrying after duplicate key")

		select {
		case <-ctx.Done():
			return err
		case <-time.After(retryBaseDelay * time.Duration(attempt+1)):
		}
	}
	return err
}

// IsMongoDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
// Upserts racing on a unique index surface the same code from findAndModify.
func IsMongoDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	return false
}
