package database

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert mapping: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uq_provider_mappings_provider"})
	name, ok := IsUniqueViolation(err)
	assert.True(t, ok)
	assert.Equal(t, "uq_provider_mappings_provider", name)

	_, ok = IsUniqueViolation(&pgconn.PgError{Code: "23503"})
	assert.False(t, ok)

	_, ok = IsUniqueViolation(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestIsForeignKeyViolation(t *testing.T) {
	err := fmt.Errorf("create team: %w", &pgconn.PgError{Code: "23503", ConstraintName: "teams_division_id_fkey"})
	name, ok := IsForeignKeyViolation(err)
	assert.True(t, ok)
	assert.Equal(t, "teams_division_id_fkey", name)

	_, ok = IsForeignKeyViolation(&pgconn.PgError{Code: "23505"})
	assert.False(t, ok)
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(fmt.Errorf("other")))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)
}
