package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/db?sslmode=disable": "pgx5://u:p@localhost:5432/db?sslmode=disable",
		"postgresql://u:p@db/stay":                         "pgx5://u:p@db/stay",
		"pgx5://already":                                   "pgx5://already",
	}
	for in, want := range tests {
		require.Equal(t, want, migrateURL(in))
	}
}
