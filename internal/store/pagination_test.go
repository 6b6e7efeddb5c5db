package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := BillCursor{Date: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), ID: 42}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	assert.True(t, in.Date.Equal(out.Date))
	assert.Equal(t, in.ID, out.ID)
}

func TestDecodeCursorEmptyStartsAtNewest(t *testing.T) {
	cursor, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, cursor.Date.After(time.Now()))
	assert.Equal(t, int64(1<<63-1), cursor.ID)
}

func TestDecodeCursorGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.Error(t, err)
}

func TestParseQuantity(t *testing.T) {
	q, err := ParseQuantity(" 3 ")
	require.NoError(t, err)
	assert.Equal(t, 3, q)

	q, err = ParseQuantity("2147483647")
	require.NoError(t, err)
	assert.Equal(t, 2147483647, q)

	for _, raw := range []string{"", "0", "-2", "abc", "1.5", "2147483648", "3000000000"} {
		_, err := ParseQuantity(raw)
		assert.Error(t, err, raw)
	}
}
