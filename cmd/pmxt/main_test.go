package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBoundFlag(t *testing.T) {
	b, err := parseBoundFlag("start", "")
	require.NoError(t, err)
	assert.Nil(t, b, "empty flag means unbounded")

	b, err = parseBoundFlag("start", "2025-06-01")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), *b,
		"date-only bound is UTC midnight")

	b, err = parseBoundFlag("end", "2025-06-01T12:30:00Z")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC), *b)

	b, err = parseBoundFlag("end", "1748736000000")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, time.UnixMilli(1748736000000).UTC(), *b)

	_, err = parseBoundFlag("start", "yesterday")
	assert.ErrorContains(t, err, "-start")
}
