package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert bill: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("Error 1062: Duplicate entry")))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: bills.tenant_id, bills.period_key")))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(gorm.ErrRecordNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("find bill: %w", gorm.ErrRecordNotFound)))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(gorm.ErrDuplicatedKey))
}

func TestDialect(t *testing.T) {
	for _, kind := range []string{TypePostgres, TypeMySQL, TypeSQLite} {
		d, err := Dialect(Config{Type: kind, Name: "kost_test"})
		assert.NoError(t, err)
		assert.Equal(t, kind, d.Name())
	}

	_, err := Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}
