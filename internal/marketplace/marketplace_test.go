package marketplace

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upload(t *testing.T, m *Marketplace, author, name string) string {
	t.Helper()
	s, err := m.Upload(author, name, json.RawMessage(`{"behaviour":"flank"}`))
	require.NoError(t, err)
	return s.ID
}

func TestUploadAndDownload(t *testing.T) {
	m := New()
	id := upload(t, m, "alice", "pincer")
	assert.Equal(t, "alice_pincer", id)

	cfg, err := m.Download(id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"behaviour":"flank"}`, string(cfg))

	s, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Downloads)

	_, err = m.Download("bob_nothing")
	assert.ErrorIs(t, err, ErrStrategyNotFound)

	_, err = m.Upload("alice", "broken", json.RawMessage(`{`))
	assert.ErrorIs(t, err, ErrInvalidStrategy)
	_, err = m.Upload("alice", "  ", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrInvalidStrategy)
}

func TestReuploadResetsCounters(t *testing.T) {
	m := New()
	id := upload(t, m, "alice", "pincer")
	_, _ = m.Download(id)
	_, err := m.Rate(id, 5)
	require.NoError(t, err)

	upload(t, m, "alice", "pincer")
	s, err := m.Get(id)
	require.NoError(t, err)
	assert.Zero(t, s.Downloads)
	assert.Empty(t, s.Ratings)
	assert.Len(t, m.Top(0), 1)
}

func TestRate(t *testing.T) {
	m := New()
	id := upload(t, m, "alice", "pincer")

	for _, bad := range []int{0, 6, -1} {
		_, err := m.Rate(id, bad)
		assert.ErrorIs(t, err, ErrInvalidRating)
	}
	_, err := m.Rate("missing", 3)
	assert.ErrorIs(t, err, ErrStrategyNotFound)

	_, err = m.Rate(id, 4)
	require.NoError(t, err)
	sum, err := m.Rate(id, 5)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, sum.Rating, 1e-9)
}

func TestTopRanking(t *testing.T) {
	m := New()
	a := upload(t, m, "u", "a")
	b := upload(t, m, "u", "b")
	c := upload(t, m, "u", "c")
	d := upload(t, m, "u", "d")

	_, _ = m.Rate(a, 3)
	_, _ = m.Rate(b, 5)
	_, _ = m.Rate(c, 3)
	_, _ = m.Download(c)

	var ids []string
	for _, s := range m.Top(0) {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{b, c, a, d}, ids)

	top := m.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, b, top[0].ID)
}
