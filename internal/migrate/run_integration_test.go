package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobpipe/internal/migrate"
	"github.com/target/mmk-jobpipe/internal/testutil"
)

func TestRun_IsIdempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	applied, err := migrate.Run(ctx, db, nil)
	require.NoError(t, err)
	assert.Empty(t, applied)

	all, err := migrate.List()
	require.NoError(t, err)
	var recorded int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&recorded))
	assert.Equal(t, len(all), recorded)
}
