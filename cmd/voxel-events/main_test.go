package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringList(t *testing.T) {
	assert.Nil(t, parseStringList(""))
	assert.Equal(t, []string{"ChunkRebuilt", "VoxelEdited"}, parseStringList(" ChunkRebuilt, ,VoxelEdited "))
}

func TestParseSinceTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSinceTime("30m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-30*time.Minute), got)

	got, err = parseSinceTime("2024-05-01T10:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), got)

	got, err = parseSinceTime("", now)
	require.NoError(t, err)
	assert.Equal(t, now, got)

	_, err = parseSinceTime("yesterday", now)
	assert.Error(t, err)
}
