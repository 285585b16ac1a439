package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrPoolExhausted reports that no pooled connection could be
	// acquired before the pool timeout elapsed. Safe to retry with backoff.
	ErrPoolExhausted = errors.New("pool_exhausted")

	// ErrStorageUnavailable reports a transient storage-layer failure
	// (connection dropped, server gone away). Safe to retry with backoff.
	ErrStorageUnavailable = errors.New("storage_unavailable")
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// ClassifyErr maps low-level driver failures to the gateway's sentinel
// errors so callers can decide retryability without driver knowledge.
// Errors that are neither pool nor transport failures pass through.
func ClassifyErr(err error) error {
	if err == nil {
		return nil
	}
	if isPoolExhausted(err) {
		return errors.Join(ErrPoolExhausted, err)
	}
	if isTransient(err) {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return err
}

// IsRetryable reports whether the caller may retry the operation with
// backoff. Validation, not-found and conflict errors are never retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPoolExhausted) || errors.Is(err, ErrStorageUnavailable)
}

func isPoolExhausted(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// MySQL (error code 1040)
	if strings.Contains(err.Error(), "Error 1040") {
		return true
	}

	return strings.Contains(err.Error(), "too many connections") ||
		strings.Contains(err.Error(), "connection pool timeout")
}

func isTransient(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, gorm.ErrInvalidDB) {
		return true
	}

	// MySQL (error code 2006/2013)
	if strings.Contains(err.Error(), "server has gone away") {
		return true
	}

	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "invalid connection")
}
