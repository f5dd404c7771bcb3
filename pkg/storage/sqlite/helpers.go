package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/mattn/go-sqlite3"
)

func jsonBytes(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v any) error {
	if data == nil {
		return nil
	}

	return json.Unmarshal(data, v)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t, Valid: true}
}

func timeOf(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}

	return t.Time
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}

	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func clampLimit(limit uint64) int64 {
	if limit > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(limit)
}
