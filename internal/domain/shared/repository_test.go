package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	c := Cursor{SortValue: time.Date(2025, 3, 1, 10, 0, 0, 123456789, time.UTC), ID: uuid.New()}
	decoded, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, c.SortValue.Equal(decoded.SortValue))
	assert.Equal(t, c.ID, decoded.ID)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	t.Run("empty is nil", func(t *testing.T) {
		c, err := DecodeCursor("")
		assert.NoError(t, err)
		assert.Nil(t, c)
	})
	for _, token := range []string{"!!!", "bm8tc2VwYXJhdG9y", "YWJjfGRlZg"} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}

func TestNewPage(t *testing.T) {
	now := time.Now()
	type row struct {
		at time.Time
		id uuid.UUID
	}
	rows := []row{{now, uuid.New()}, {now.Add(-time.Second), uuid.New()}, {now.Add(-2 * time.Second), uuid.New()}}
	cursorOf := func(r row) Cursor { return Cursor{SortValue: r.at, ID: r.id} }

	page := NewPage(rows, 2, cursorOf)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, cursorOf(rows[1]).Encode(), page.NextCursor)

	last := NewPage(rows[:1], 2, cursorOf)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.NextCursor)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultPageLimit, NormalizeLimit(0))
	assert.Equal(t, MaxPageLimit, NormalizeLimit(1000))
	assert.Equal(t, 7, NormalizeLimit(7))
}
