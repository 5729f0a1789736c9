package models

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortID(t *testing.T) {
	id := uuid.MustParse("ab12cd34-5678-90ab-cdef-1234567890ab")
	r := &Receipt{ID: id}

	assert.Equal(t, "ab12cd34", r.ShortID())
}

func TestMatchesIDPrefix(t *testing.T) {
	id := uuid.MustParse("ab12cd34-5678-90ab-cdef-1234567890ab")
	r := &Receipt{ID: id}

	assert.True(t, r.MatchesIDPrefix("ab12cd34"))
	assert.True(t, r.MatchesIDPrefix("AB12CD34"), "prefix match is case-insensitive")
	assert.True(t, r.MatchesIDPrefix("ab12cd345678"), "dashes are ignored beyond the short form")
	assert.True(t, r.MatchesIDPrefix("a"))
	assert.False(t, r.MatchesIDPrefix(""))
	assert.False(t, r.MatchesIDPrefix("ff"))

	full := strings.ReplaceAll(id.String(), "-", "")
	require.Len(t, full, 32)
	assert.True(t, r.MatchesIDPrefix(full), "the full id matches itself")
}
