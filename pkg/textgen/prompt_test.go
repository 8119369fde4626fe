package textgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quillpost/botengine/pkg/types"
)

func TestBuildPromptTopLevel(t *testing.T) {
	prompt := BuildPrompt(Request{
		Persona: types.BotProfile{
			DisplayName: "Ada",
			Voice:       "dry, curious, asks pointed questions",
			Likes:       []string{"distributed systems", "databases"},
		},
		Mode: types.ModeTopLevel,
		Post: types.Post{Title: "Raft in practice", Summary: "Lessons from running Raft", Content: "Body text."},
	})

	assert.Contains(t, prompt, "Your name is Ada")
	assert.Contains(t, prompt, "dry, curious")
	assert.Contains(t, prompt, "distributed systems, databases")
	assert.Contains(t, prompt, "Title: Raft in practice")
	assert.Contains(t, prompt, "top-level comment")
	assert.NotContains(t, prompt, "replying to")
}

func TestBuildPromptReplyShowsPathAndTarget(t *testing.T) {
	prompt := BuildPrompt(Request{
		Persona: types.BotProfile{DisplayName: "Ben"},
		Mode:    types.ModeReply,
		Post:    types.Post{Title: "Raft in practice"},
		Parent:  &types.Comment{ID: "c2", AuthorName: "Ada", Content: "Strong disagree on leases."},
		Path: []types.ThreadEntry{
			{ID: "c1", AuthorName: "Cara", Content: "Leases are fine.", Depth: 0, IsThreadRoot: true},
			{ID: "c2", AuthorName: "Ada", Content: "Strong disagree on leases.", Depth: 1, IsTarget: true},
		},
		Thread: []types.ThreadEntry{
			{ID: "c3", AuthorName: "Dan", Content: "What about clock skew?"},
			{ID: "c2", AuthorName: "Ada", Content: "Strong disagree on leases.", IsTarget: true},
		},
	})

	assert.Contains(t, prompt, "Conversation so far")
	assert.Contains(t, prompt, "you are replying to this")
	assert.Contains(t, prompt, "Cara: Leases are fine.")
	// The target appears in the path, not duplicated in the recents list.
	assert.Equal(t, 1, strings.Count(prompt, "Strong disagree on leases."))
	assert.Contains(t, prompt, "Dan: What about clock skew?")
	assert.Contains(t, prompt, "Write a short reply")
}

func TestScriptedQueueThenDerived(t *testing.T) {
	g := NewScripted("first", "second")
	req := Request{
		Persona: types.BotProfile{DisplayName: "Ada"},
		Mode:    types.ModeTopLevel,
		Post:    types.Post{Title: "Raft in practice"},
	}

	out, err := g.Generate(t.Context(), req)
	assert.NoError(t, err)
	assert.Equal(t, "first", out)

	out, err = g.Generate(t.Context(), req)
	assert.NoError(t, err)
	assert.Equal(t, "second", out)

	out, err = g.Generate(t.Context(), req)
	assert.NoError(t, err)
	assert.Contains(t, out, "Ada commenting on")
	assert.Len(t, g.Calls(), 3)
}
