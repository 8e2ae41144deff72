package test_utils

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// CreateUsers inserts one user per username and returns their ids in order.
func CreateUsers(t *testing.T, db *pgxpool.Pool, usernames ...string) []int {
	t.Helper()
	ids := make([]int, 0, len(usernames))
	for _, username := range usernames {
		var id int
		err := db.QueryRow(context.Background(),
			`INSERT INTO users (username, email) VALUES ($1, $2) RETURNING id`,
			username, username+"@example.com",
		).Scan(&id)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}
