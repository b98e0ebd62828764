package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_Embedded(t *testing.T) {
	got, err := List()
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, Migration{Version: "0001_create_jobs", File: "0001_create_jobs.sql"}, got[0])
}

func TestList_SortsAndSkipsNonSQL(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_b.sql":   {Data: []byte("SELECT 2")},
		"migrations/0001_a.sql":   {Data: []byte("SELECT 1")},
		"migrations/README.md":    {Data: []byte("notes")},
		"migrations/0003_c/x.sql": {Data: []byte("SELECT 3")},
	}
	got, err := list(fsys)
	require.NoError(t, err)
	assert.Equal(t, []Migration{
		{Version: "0001_a", File: "0001_a.sql"},
		{Version: "0002_b", File: "0002_b.sql"},
	}, got)
}

func TestList_MissingDir(t *testing.T) {
	_, err := list(fstest.MapFS{})
	assert.Error(t, err)
}
