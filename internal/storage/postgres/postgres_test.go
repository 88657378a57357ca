package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"fx-signal-lab/internal/storage"
)

func TestStoreError(t *testing.T) {
	assert.Equal(t, storage.ErrNotFound, storeError(fmt.Errorf("scan: %w", pgx.ErrNoRows), "get"))
	assert.Equal(t, storage.ErrDuplicateKey, storeError(&pgconn.PgError{Code: uniqueViolation}, "insert"))

	other := &pgconn.PgError{Code: "23503"}
	err := storeError(other, "insert signal")
	assert.True(t, errors.As(err, &other))
	assert.Contains(t, err.Error(), "insert signal")
}

func TestNullNumeric_RoundTrip(t *testing.T) {
	assert.Nil(t, nullNumericArg(decimal.NullDecimal{}))

	got, err := parseNullNumeric(nullNumericArg(decimal.NewNullDecimal(decimal.RequireFromString("145.123456"))))
	assert.NoError(t, err)
	assert.True(t, got.Valid)
	assert.Equal(t, "145.123456", got.Decimal.String())

	_, err = parseNumeric("abc")
	assert.Error(t, err)
}
