package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingIsEmpty(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "state.json")).Load()
	require.NoError(t, err)
	assert.Nil(t, st.Best)

	_, err = New("").Load()
	assert.Error(t, err)
}

func TestSaveBestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := New(path)
	require.NoError(t, s.SaveBest(Best{
		ID:             "abc",
		Symbol:         "BTCUSDT",
		Strategy:       "trend",
		RankBy:         "total_return",
		Params:         map[string]string{"timeframe": "4h", "short_window": "20"},
		TotalReturnPct: 12.5,
	}))

	st, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, st.Best)
	assert.Equal(t, "abc", st.Best.ID)
	assert.Equal(t, "4h", st.Best.Params["timeframe"])
	assert.Equal(t, 12.5, st.Best.TotalReturnPct)
	assert.False(t, st.Best.SavedAt.IsZero())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestResetAndCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)
	require.NoError(t, s.SaveBest(Best{ID: "x"}))
	require.NoError(t, s.Reset())
	require.NoError(t, s.Reset())
	st, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, st.Best)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = s.Load()
	assert.Error(t, err)
}
