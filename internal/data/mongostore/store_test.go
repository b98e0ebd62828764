package mongostore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/data/storetest"
	"github.com/target/mmk-jobpipe/internal/domain/model"
	"github.com/target/mmk-jobpipe/internal/testutil"
)

func newStore(t *testing.T, tp *testutil.TestTimeProvider) *Store {
	t.Helper()
	db := testutil.SetupTestMongo(t)
	s, err := New(context.Background(), db, Options{TimeProvider: tp})
	require.NoError(t, err)
	return s
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, tp *testutil.TestTimeProvider) core.JobStore {
		return newStore(t, tp)
	})
}

func TestStore_PipelineLiteralStrings(t *testing.T) {
	s := newStore(t, testutil.NewTestTimeProvider(testutil.TestTime()))
	ctx := context.Background()

	job, _, err := s.CreateJob(ctx, "literal", json.RawMessage(`{}`), "https://example.com")
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, job.ID, model.StatusUpdate{Status: model.JobStatusRunning}))
	require.NoError(t, s.UpdateStatus(ctx, job.ID, model.StatusUpdate{
		Status:       model.JobStatusFailed,
		ErrorMessage: testutil.StringPtr("$status is not a field"),
	}))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "$status is not a field", *got.ErrorMessage)
}

func TestNew_RequiresDatabase(t *testing.T) {
	_, err := New(context.Background(), nil, Options{})
	assert.Error(t, err)
}
