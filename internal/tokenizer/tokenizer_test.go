package tokenizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUnknownTokenizer(t *testing.T) {
	_, err := Get("no-such-encoding")
	require.Error(t, err)

	var unavailable *UnavailableError
	assert.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "no-such-encoding", unavailable.Name)
}

func TestHeuristicCountDeterministic(t *testing.T) {
	c, err := Get(HeuristicName)
	require.NoError(t, err)

	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 0, c.Count("   \n\t"))
	assert.Equal(t, 2, c.Count("hello world"))
	assert.Equal(t, c.Count("hello world"), c.Count("hello world"))

	// Punctuation runs count as one piece.
	assert.Equal(t, 3, c.Count("hi, there"))

	// Long words split into 4-rune pieces.
	assert.Equal(t, 3, c.Count("internationa")) // 12 runes
}

func TestHeuristicTruncate(t *testing.T) {
	c, err := Get(HeuristicName)
	require.NoError(t, err)

	text := "one two three four five"
	assert.Equal(t, text, c.Truncate(text, 10))
	assert.Equal(t, "", c.Truncate(text, 0))

	got := c.Truncate(text, 2)
	assert.Equal(t, "one two", got)
	assert.Equal(t, 2, c.Count(got))

	// Truncation never exceeds the budget.
	for n := 1; n <= 5; n++ {
		assert.LessOrEqual(t, c.Count(c.Truncate(text, n)), n)
	}
}

func TestRegisterOverride(t *testing.T) {
	c, err := Get(HeuristicName)
	require.NoError(t, err)
	Register(c)

	again, err := Get(HeuristicName)
	require.NoError(t, err)
	assert.Equal(t, c.Name(), again.Name())
}
