package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpost/botengine/pkg/types"
)

func TestGenerateProfilesCount(t *testing.T) {
	assert.Empty(t, GenerateProfiles(0, 1))
	assert.Len(t, GenerateProfiles(3, 1), 3)
	assert.Len(t, GenerateProfiles(12, 1), 12)
}

func TestGenerateProfilesDeterministic(t *testing.T) {
	a := GenerateProfiles(10, 42)
	b := GenerateProfiles(10, 42)
	require.Len(t, a, 10)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].Behavior.BaseResponseProbability, b[i].Behavior.BaseResponseProbability)
	}
}

func TestGenerateProfilesUniqueIDs(t *testing.T) {
	bots := GenerateProfiles(15, 7)
	seen := map[string]bool{}
	for _, b := range bots {
		assert.False(t, seen[b.ID], "duplicate id %s", b.ID)
		seen[b.ID] = true
		assert.True(t, b.Active)
		assert.NotEmpty(t, b.DisplayName)
	}
}

func TestProfilesNormalizeCleanly(t *testing.T) {
	for _, b := range GenerateProfiles(10, 3) {
		n := types.NormalizeBot(b)
		assert.GreaterOrEqual(t, n.Behavior.BaseResponseProbability, 0.0)
		assert.LessOrEqual(t, n.Behavior.BaseResponseProbability, 1.0)
		assert.NotEmpty(t, n.Behavior.ActionWeights)
		assert.LessOrEqual(t, n.Behavior.PostDelay.MinMinutes, n.Behavior.PostDelay.MaxMinutes)
	}
}

func TestDefaultBotsReturnsCopy(t *testing.T) {
	a := DefaultBots()
	a[0].DisplayName = "mutated"
	assert.NotEqual(t, a[0].DisplayName, DefaultBots()[0].DisplayName)
}
