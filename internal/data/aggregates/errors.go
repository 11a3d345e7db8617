package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/benefits-backend/internal/domain/aggregates"
)

// SQLSTATE classes that carry aggregate meaning. Grants carry no unique
// business key, so a unique violation is a lost insert race.
var pgCodes = map[string]domainagg.ErrorCode{
	"23505": domainagg.CodeRetryable,          // unique_violation
	"23503": domainagg.CodePreconditionFailed, // foreign_key_violation
	"23514": domainagg.CodeInvariantViolation, // check_violation
	"40001": domainagg.CodeRetryable,          // serialization_failure
	"40P01": domainagg.CodeRetryable,          // deadlock_detected
	"55P03": domainagg.CodeRetryable,          // lock_not_available
}

// SQLite reports constraint and locking failures only as text.
var driverMessages = []struct {
	fragment string
	code     domainagg.ErrorCode
}{
	{"unique constraint failed", domainagg.CodeRetryable},
	{"duplicate key", domainagg.CodeRetryable},
	{"check constraint failed", domainagg.CodeInvariantViolation},
	{"database is locked", domainagg.CodeRetryable},
	{"database table is locked", domainagg.CodeRetryable},
	{"deadlock", domainagg.CodeRetryable},
}

// MapError classifies a write failure. Errors that already carry a code pass
// through unchanged; anything unrecognised is internal.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var aggErr *domainagg.Error
	if errors.As(err, &aggErr) {
		return err
	}
	return domainagg.Wrap(classify(err), op, err)
}

func classify(err error) domainagg.ErrorCode {
	switch {
	case errors.Is(err, domainagg.ErrOutcomeAlreadyRecorded):
		return domainagg.CodeConflict
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domainagg.CodeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return domainagg.CodeRetryable
	case errors.Is(err, context.Canceled):
		return domainagg.CodeInternal
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if code, ok := pgCodes[strings.TrimSpace(pgErr.Code)]; ok {
			return code
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range driverMessages {
		if strings.Contains(msg, m.fragment) {
			return m.code
		}
	}
	return domainagg.CodeInternal
}
