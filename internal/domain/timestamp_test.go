package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC)

	cases := map[string]string{
		"explicit Z":       "2024-03-01T10:15:30Z",
		"explicit offset":  "2024-03-01T12:15:30+02:00",
		"naive":            "2024-03-01T10:15:30",
		"naive with space": "2024-03-01 10:15:30",
		"space and offset": "2024-03-01 10:15:30+00:00",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ParseTimestamp(input)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	t.Run("naive and explicit UTC compare equal", func(t *testing.T) {
		naive, err := ParseTimestamp("2024-03-01T10:15:30.250")
		require.NoError(t, err)
		explicit, err := ParseTimestamp("2024-03-01T10:15:30.25Z")
		require.NoError(t, err)
		assert.Equal(t, explicit, naive)
	})

	for _, bad := range []string{"", "yesterday", "2024-13-01T00:00:00"} {
		_, err := ParseTimestamp(bad)
		assert.True(t, errors.Is(err, ErrInvalidTimestamp), "input %q", bad)
	}
}
