package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiltersLiteralPhrase(t *testing.T) {
	filters, err := NewFilters(nil, []string{"[ Visa mer ]"})
	require.NoError(t, err)

	assert.Equal(t, "hello  world", filters.Apply("hello [ Visa mer ] world"))
	// The literal is not a character class: unrelated text is untouched.
	assert.Equal(t, "Visa mig resten", filters.Apply("Visa mig resten"))
}

func TestFiltersRegexPhrase(t *testing.T) {
	filters, err := NewFilters([]string{`https?://\S+`}, nil)
	require.NoError(t, err)

	assert.Equal(t, "se ", filters.Apply("se https://example.com/t123"))
}

func TestFiltersRejectBadPattern(t *testing.T) {
	_, err := NewFilters([]string{"("}, nil)
	assert.Error(t, err)
}

func TestFiltersEmpty(t *testing.T) {
	filters, err := NewFilters(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "unchanged", filters.Apply("unchanged"))
}
