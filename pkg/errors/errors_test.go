package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23514"}))
	assert.False(t, IsUniqueViolation(nil))
}

func TestIsCheckViolation(t *testing.T) {
	assert.True(t, IsCheckViolation(gorm.ErrCheckConstraintViolated))
	assert.True(t, IsCheckViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23514"})))
	assert.False(t, IsCheckViolation(gorm.ErrRecordNotFound))
	assert.False(t, IsCheckViolation(nil))
}

func TestCompensationError_Unwrap(t *testing.T) {
	forward := errors.New("occupancy failed")
	err := fmt.Errorf("assign: %w", &CompensationError{
		Step:   "increment_occupancy",
		Cause:  forward,
		Failed: []string{"clear_residency"},
		Err:    errors.New("connection reset"),
	})

	assert.ErrorIs(t, err, ErrReconciliationRequired)
	assert.ErrorIs(t, err, forward)

	var ce *CompensationError
	if assert.ErrorAs(t, err, &ce) {
		assert.Equal(t, "increment_occupancy", ce.Step)
		assert.Equal(t, []string{"clear_residency"}, ce.Failed)
	}
	assert.Contains(t, err.Error(), "increment_occupancy")
}
