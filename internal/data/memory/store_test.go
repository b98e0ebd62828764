package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/data/storetest"
	"github.com/target/mmk-jobpipe/internal/testutil"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(_ *testing.T, tp *testutil.TestTimeProvider) core.JobStore {
		return NewStore(WithTimeProvider(tp))
	})
}

func TestStore_ReturnsClones(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	job, _, err := s.CreateJob(ctx, "doc", json.RawMessage(`{"a":1}`), "https://example.com")
	require.NoError(t, err)

	job.Payload[0] = 'X'
	job.WebhookURL = "mutated"

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got.Payload))
	assert.Equal(t, "https://example.com", got.WebhookURL)
	assert.Equal(t, 1, s.Len())
}
