package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestWithTxCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE registrations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE registrations SET status = 'ACTIVE'")
		return err
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	expected := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
		return expected
	})
	assert.Equal(t, expected, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRetriesSerializationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	serErr := &pq.Error{Code: pq.ErrorCode(pqSerializationFailure)}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE registrations").WillReturnError(serErr)
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE registrations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE registrations SET status = 'ACTIVE'")
		return err
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&pq.Error{Code: pq.ErrorCode(pqSerializationFailure)}))
	assert.True(t, retryable(errors.Wrap(&pq.Error{Code: pq.ErrorCode(pqDeadlockDetected)}, "wrapped")))
	assert.False(t, retryable(errors.New("other")))
	assert.False(t, retryable(&pq.Error{Code: "23505"}))
}
