package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/unionhall/hall-app/log"
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// WithTx runs fn inside a transaction, retrying a bounded number of
// times when postgres aborts the transaction for serialization reasons.
// fn must be safe to re-run from scratch.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(), 3), ctx)

	return backoff.Retry(func() error {
		err := runTx(ctx, db, fn)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func runTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "could not begin transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Hall.Warnf("failed to rollback transaction %s", rbErr.Error())
		}
		return err
	}

	return tx.Commit()
}

func retryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqSerializationFailure ||
			string(pqErr.Code) == pqDeadlockDetected
	}
	return false
}

// IsUniqueViolation reports whether err is a postgres unique-constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}

// HealthCheck reports whether the database answers a ping within the
// given timeout.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.PingContext(ctx)
}
